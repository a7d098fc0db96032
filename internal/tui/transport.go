// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"sync/atomic"

	"beatscope/internal/analysis"
	"beatscope/internal/transport"

	tea "github.com/charmbracelet/bubbletea"
)

// program is the subset of *tea.Program the transport drives.
type program interface {
	Send(msg tea.Msg)
	Quit()
}

// ProgramTransport forwards results to a running bubbletea program.
type ProgramTransport struct {
	p      program
	closed atomic.Bool
}

var _ transport.Transport = (*ProgramTransport)(nil)

// NewProgramTransport wraps p. Send blocks until p has started.
func NewProgramTransport(p *tea.Program) *ProgramTransport {
	return &ProgramTransport{p: p}
}

// Send implements transport.Transport.
func (t *ProgramTransport) Send(data any) error {
	if t.closed.Load() {
		return transport.ErrClosed
	}
	r, ok := data.(*analysis.Result)
	if !ok {
		return fmt.Errorf("tui: unsupported payload %T", data)
	}
	t.p.Send(ResultMsg{Result: r})
	return nil
}

// Close asks the program to exit.
func (t *ProgramTransport) Close() error {
	if t.closed.CompareAndSwap(false, true) {
		t.p.Quit()
	}
	return nil
}
