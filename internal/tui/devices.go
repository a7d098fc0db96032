// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"beatscope/internal/capture"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrNoSelection is returned by PickDevice when the user quits without
// choosing.
var ErrNoSelection = errors.New("no device selected")

// CommonSampleRates are offered on the configuration screen.
var CommonSampleRates = []int{44100, 48000, 88200, 96000}

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// Selection is the outcome of the picker.
type Selection struct {
	DeviceID   int
	Name       string
	SampleRate int
}

// DeviceFetcher lists the host's devices, usually capture.HostDevices.
type DeviceFetcher func() ([]capture.Device, error)

type devicesMsg struct {
	devices []capture.Device
}

type errMsg struct {
	err error
}

// DevicePicker lets the user choose an input device and sample rate
// before capture starts. Output-only devices are not listed.
type DevicePicker struct {
	fetch DeviceFetcher

	devices       []capture.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	sampleRateIndex int
	selection       *Selection
}

// NewDevicePicker creates a picker fed by fetch.
func NewDevicePicker(fetch DeviceFetcher) DevicePicker {
	return DevicePicker{fetch: fetch, activeScreen: ListScreen}
}

// Init fetches the device list.
func (m DevicePicker) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{inputDevices(devices)}
	}
}

func inputDevices(all []capture.Device) []capture.Device {
	var in []capture.Device
	for _, d := range all {
		if d.MaxInputChannels > 0 {
			in = append(in, d)
		}
	}
	return in
}

// Update handles input and updates the model
func (m DevicePicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case devicesMsg:
		m.devices = msg.devices
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			return m, tea.Quit
		}
		if m.activeScreen == ListScreen {
			return m.updateList(msg)
		}
		return m.updateConfig(msg)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m DevicePicker) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if m.selectedIndex > 0 {
			m.selectedIndex--
		}
	case key.Matches(msg, keys.Down):
		if m.selectedIndex < len(m.devices)-1 {
			m.selectedIndex++
		}
	case key.Matches(msg, keys.Select):
		if len(m.devices) > 0 {
			m.activeScreen = ConfigScreen
			m.sampleRateIndex = closestRate(m.devices[m.selectedIndex].DefaultSampleRate)
		}
	}
	m.refresh()
	return m, nil
}

func (m DevicePicker) updateConfig(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		m.activeScreen = ListScreen
	case key.Matches(msg, keys.Up):
		if m.sampleRateIndex > 0 {
			m.sampleRateIndex--
		}
	case key.Matches(msg, keys.Down):
		if m.sampleRateIndex < len(CommonSampleRates)-1 {
			m.sampleRateIndex++
		}
	case key.Matches(msg, keys.Select):
		d := m.devices[m.selectedIndex]
		m.selection = &Selection{
			DeviceID:   d.ID,
			Name:       d.Name,
			SampleRate: CommonSampleRates[m.sampleRateIndex],
		}
		return m, tea.Quit
	}
	m.refresh()
	return m, nil
}

// closestRate returns the index of the offered rate nearest to hz.
func closestRate(hz float64) int {
	best := 0
	for i, rate := range CommonSampleRates {
		if math.Abs(float64(rate)-hz) < math.Abs(float64(CommonSampleRates[best])-hz) {
			best = i
		}
	}
	return best
}

func (m *DevicePicker) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ListScreen {
		m.viewport.SetContent(m.renderDevices())
	} else {
		m.viewport.SetContent(m.renderDeviceConfig())
	}
}

// Selected returns the chosen device once the user confirmed one.
func (m DevicePicker) Selected() (Selection, bool) {
	if m.selection == nil {
		return Selection{}, false
	}
	return *m.selection, true
}

// View renders the UI
func (m DevicePicker) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Input Devices")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Device Configuration")
		help = infoStyle.Render("↑/↓: Change Value • Enter: Start • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

// renderDevices formats the device list
func (m DevicePicker) renderDevices() string {
	if len(m.devices) == 0 {
		return "No input devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		info := fmt.Sprintf("[%d] %s (%s)\n", device.ID, device.Name, device.Kind())
		info += fmt.Sprintf("    Input channels: %d, Default sample rate: %.0f Hz\n",
			device.MaxInputChannels, device.DefaultSampleRate)

		if i == m.selectedIndex {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderDeviceConfig formats the device configuration screen
func (m DevicePicker) renderDeviceConfig() string {
	var sb strings.Builder
	device := m.devices[m.selectedIndex]

	fmt.Fprintf(&sb, "Configure Device: %s\n\n", device.Name)
	sb.WriteString("Sample Rate:\n")

	for i, rate := range CommonSampleRates {
		marker := " "
		if i == m.sampleRateIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %d Hz\n", marker, rate)
		if i == m.sampleRateIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// PickDevice runs the picker full screen and returns the choice.
func PickDevice(fetch DeviceFetcher) (Selection, error) {
	final, err := tea.NewProgram(NewDevicePicker(fetch), tea.WithAltScreen()).Run()
	if err != nil {
		return Selection{}, fmt.Errorf("device picker: %w", err)
	}
	picker, ok := final.(DevicePicker)
	if !ok {
		return Selection{}, ErrNoSelection
	}
	if picker.err != nil {
		return Selection{}, picker.err
	}
	sel, ok := picker.Selected()
	if !ok {
		return Selection{}, ErrNoSelection
	}
	return sel, nil
}
