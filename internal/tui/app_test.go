package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/printmeter/internal/config"
	"github.com/theirongolddev/printmeter/internal/daemon"
	"github.com/theirongolddev/printmeter/internal/tracker"
)

type fakeSource struct {
	status daemon.Status
	reset  []string
}

func (f *fakeSource) Status(context.Context) (daemon.Status, error) { return f.status, nil }

func (f *fakeSource) Subscribe(ctx context.Context, _ func(daemon.Event)) error {
	<-ctx.Done()
	return nil
}

func (f *fakeSource) Reset(_ context.Context, id string) (daemon.PrinterStatus, error) {
	f.reset = append(f.reset, id)
	return daemon.PrinterStatus{ID: id, Name: "K2 Plus"}, nil
}

func twoPrinters() daemon.Status {
	return daemon.Status{Printers: []daemon.PrinterStatus{
		{ID: "k2", Name: "K2 Plus", Snapshot: tracker.Snapshot{
			PrinterID: "k2", Currency: "EUR",
			Totals: tracker.Totals{PrintCount: 2, TotalEnergy: 4.2, TotalCost: 1.1},
		}},
		{ID: "mini", Name: "Mini", Snapshot: tracker.Snapshot{PrinterID: "mini", Currency: "USD"}},
	}}
}

func update(t *testing.T, a App, msg tea.Msg) App {
	t.Helper()
	m, _ := a.Update(msg)
	out, ok := m.(App)
	require.True(t, ok)
	return out
}

func newTestApp(t *testing.T) (App, *fakeSource) {
	t.Helper()
	src := &fakeSource{status: twoPrinters()}
	a := NewApp(src, []config.PrinterConfig{{ID: "k2", Name: "K2 Plus", MaterialSensor: "sensor.k2_filament"}})
	t.Cleanup(a.cancel)
	a = update(t, a, tea.WindowSizeMsg{Width: 120, Height: 40})
	a = update(t, a, statusMsg{status: src.status})
	return a, src
}

func TestStatusLoadsPrinters(t *testing.T) {
	a, _ := newTestApp(t)
	require.True(t, a.loaded)
	require.Len(t, a.printers, 2)
	assert.Equal(t, []float64{4.2}, a.history["k2"])

	view := a.View()
	assert.Contains(t, view, "K2 Plus")
	assert.Contains(t, view, "1.10 EUR")
}

func TestNavigationKeys(t *testing.T) {
	a, _ := newTestApp(t)

	a = update(t, a, tea.KeyMsg{Type: tea.KeyRight})
	assert.Equal(t, 1, a.active)
	a = update(t, a, tea.KeyMsg{Type: tea.KeyRight})
	assert.Equal(t, 0, a.active)
	a = update(t, a, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'2'}})
	assert.Equal(t, 1, a.active)
	a = update(t, a, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'9'}})
	assert.Equal(t, 1, a.active)
}

func TestEventUpdatesPrinterAndHistory(t *testing.T) {
	a, _ := newTestApp(t)

	started := time.Now().Add(-10 * time.Minute)
	snap := tracker.Snapshot{
		PrinterID: "k2", Currency: "EUR",
		Totals:  tracker.Totals{PrintCount: 2, TotalEnergy: 4.2},
		Session: tracker.Session{IsPrinting: true, StartedAt: &started},
		Current: tracker.CurrentSession{Energy: 0.3},
	}
	a = update(t, a, eventMsg{ev: daemon.Event{Type: string(tracker.EventPrintStarted), PrinterID: "k2", Snapshot: snap}})

	assert.True(t, a.connected)
	assert.True(t, a.printers[0].Snapshot.Session.IsPrinting)
	assert.Equal(t, "K2 Plus", a.printers[0].Name)
	assert.NotEmpty(t, a.printers[0].Metrics)
	assert.InDeltaSlice(t, []float64{4.2, 4.5}, a.history["k2"], 1e-9)
	require.Len(t, a.events, 1)

	// snapshot events refresh state without entering the log
	a = update(t, a, eventMsg{ev: daemon.Event{Type: daemon.EventSnapshot, PrinterID: "k2", Snapshot: snap}})
	assert.Len(t, a.events, 1)

	assert.Contains(t, a.View(), "printing")
	a = update(t, a, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'e'}})
	assert.Contains(t, a.View(), "started printing")
}

func TestResetNeedsConfirmation(t *testing.T) {
	a, src := newTestApp(t)

	a = update(t, a, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	require.True(t, a.confirmReset)
	a = update(t, a, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})
	assert.False(t, a.confirmReset)

	a = update(t, a, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	m, cmd := a.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'y'}})
	require.NotNil(t, cmd)
	msg := cmd()
	done, ok := msg.(resetDoneMsg)
	require.True(t, ok)
	assert.Equal(t, []string{"k2"}, src.reset)

	a = update(t, m.(App), done)
	assert.Equal(t, "reset K2 Plus", a.note)
	assert.Empty(t, a.history["k2"])
}

func TestStreamEndSchedulesReconnect(t *testing.T) {
	a, _ := newTestApp(t)
	a.connected = true
	m, cmd := a.Update(streamEndedMsg{err: errors.New("connection reset")})
	assert.False(t, m.(App).connected)
	assert.NotNil(t, cmd)
}

func TestTooNarrow(t *testing.T) {
	a, _ := newTestApp(t)
	a = update(t, a, tea.WindowSizeMsg{Width: 40, Height: 10})
	assert.Contains(t, a.View(), "too narrow")
}

func TestMouseSelectsTab(t *testing.T) {
	a, _ := newTestApp(t)
	// "1 K2 Plus" is 9 wide plus padding and a separator
	a = update(t, a, tea.MouseMsg{X: 14, Y: 0, Button: tea.MouseButtonLeft, Action: tea.MouseActionPress})
	assert.Equal(t, 1, a.active)
}
