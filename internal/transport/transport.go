// SPDX-License-Identifier: MIT
// Package transport delivers analysis results to consumers.
package transport

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// Transport defines a generic interface for sending processed data or events.
// Implementations must be thread-safe and must not block the caller for
// longer than a chunk interval.
type Transport interface {
	Send(data any) error
	Close() error
}

// Multi fans every call out to each transport in order. A failing
// transport does not stop delivery to the others; their errors are joined.
type Multi []Transport

// Send delivers data to every transport.
func (m Multi) Send(data any) error {
	var errs []error
	for i, t := range m {
		if err := t.Send(data); err != nil {
			errs = append(errs, fmt.Errorf("transport %d (%T): %w", i, t, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every transport.
func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Transport = Multi(nil)
