// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"beatscope/internal/analysis"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	// beatHold is how many results the beat marker stays lit.
	beatHold = 3

	// gainDecay relaxes the per-band reference level each update so the
	// bars recover after a loud passage.
	gainDecay = 0.995

	defaultBarWidth = 40
	minBarWidth     = 10
)

// ResultMsg carries one analysis result into the meter.
type ResultMsg struct {
	Result *analysis.Result
}

// band is one auto-scaled level bar.
type band struct {
	label string
	level float64
	ref   float64
}

func (b *band) update(level float64) {
	b.level = level
	b.ref = max(b.ref*gainDecay, level)
}

func (b band) scaled() float64 {
	if b.ref <= 0 {
		return 0
	}
	return b.level / b.ref
}

// Meter is a live view of band levels, beats, tempo and the dominant
// frequency. Levels are scaled against a decaying peak per band.
type Meter struct {
	title    string
	width    int
	bands    [4]band
	beatTTL  int
	beats    int
	results  int
	tempo    float64
	dominant float64
	extended *analysis.ExtendedFeatures
}

// NewMeter creates a meter with the given header.
func NewMeter(title string) Meter {
	return Meter{
		title: title,
		width: defaultBarWidth,
		bands: [4]band{{label: "Bass"}, {label: "Mid"}, {label: "Treble"}, {label: "Overall"}},
	}
}

// Init implements tea.Model.
func (m Meter) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Meter) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = max(msg.Width-labelStyle.GetWidth()-10, minBarWidth)
	case ResultMsg:
		if msg.Result != nil {
			m.apply(msg.Result)
		}
	}
	return m, nil
}

func (m *Meter) apply(r *analysis.Result) {
	f := r.Features
	m.bands[0].update(f.BassLevel)
	m.bands[1].update(f.MidLevel)
	m.bands[2].update(f.TrebleLevel)
	m.bands[3].update(f.OverallLevel)

	m.results++
	if f.BeatDetected {
		m.beats++
		m.beatTTL = beatHold
	} else if m.beatTTL > 0 {
		m.beatTTL--
	}
	m.tempo = f.Tempo
	m.dominant = f.DominantFrequency
	m.extended = r.ExtendedFeatures
}

// BeatLit reports whether the beat marker is currently shown.
func (m Meter) BeatLit() bool { return m.beatTTL > 0 }

// Results returns how many results the meter has seen.
func (m Meter) Results() int { return m.results }

// View implements tea.Model.
func (m Meter) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")

	for _, b := range m.bands {
		fmt.Fprintf(&sb, "%s %s %8.3f\n", labelStyle.Render(b.label), bar(b.scaled(), m.width), b.level)
	}
	sb.WriteString("\n")

	marker := dimStyle.Render("○")
	if m.BeatLit() {
		marker = beatStyle.Render("●")
	}
	tempo := "--"
	if m.tempo > 0 {
		tempo = fmt.Sprintf("%.1f", m.tempo)
	}
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		fmt.Sprintf("Beat %s (%d)", marker, m.beats),
		infoStyle.Render(fmt.Sprintf("   Tempo %s BPM", tempo)),
		infoStyle.Render(fmt.Sprintf("   Dominant %.1f Hz", m.dominant)),
	))
	sb.WriteString("\n")

	if m.extended != nil {
		m.renderExtended(&sb)
	}

	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render("q: Quit"))
	return sb.String()
}

func (m Meter) renderExtended(sb *strings.Builder) {
	x := m.extended
	fmt.Fprintf(sb, "\nCentroid %.1f Hz  Rolloff %.1f Hz  Flux %.3f  ZCR %.3f  RMS %.3f  Peak %.3f\n\n",
		x.SpectralCentroid, x.SpectralRolloff, x.SpectralFlux, x.ZeroCrossingRate, x.RMS, x.Peak)

	inst := x.InstrumentDetection
	rows := []struct {
		name string
		v    float64
	}{
		{"Drums", inst.Drums},
		{"Guitar", inst.Guitar},
		{"Bass", inst.Bass},
		{"Vocals", inst.Vocals},
		{"Piano", inst.Piano},
		{"Strings", inst.Strings},
	}
	width := max(m.width/2, minBarWidth)
	for _, row := range rows {
		fmt.Fprintf(sb, "%s %s %.2f\n", labelStyle.Render(row.name), bar(row.v, width), row.v)
	}
}
