// Package tui provides the interactive Bubble Tea dashboard for printmeter.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/printmeter/internal/cli"
	"github.com/theirongolddev/printmeter/internal/config"
	"github.com/theirongolddev/printmeter/internal/daemon"
	"github.com/theirongolddev/printmeter/internal/projection"
	"github.com/theirongolddev/printmeter/internal/tracker"
	"github.com/theirongolddev/printmeter/internal/tui/components"
	"github.com/theirongolddev/printmeter/internal/tui/theme"
)

// Source is the daemon surface the dashboard reads from.
type Source interface {
	Status(ctx context.Context) (daemon.Status, error)
	Subscribe(ctx context.Context, fn func(daemon.Event)) error
	Reset(ctx context.Context, printerID string) (daemon.PrinterStatus, error)
}

type statusMsg struct {
	status daemon.Status
	err    error
}

type eventMsg struct{ ev daemon.Event }

type streamEndedMsg struct{ err error }

type reconnectMsg struct{}

type resetDoneMsg struct {
	ps  daemon.PrinterStatus
	err error
}

type tickMsg struct{}

const (
	minTerminalWidth = 80
	maxContentWidth  = 160
	minContentHeight = 5

	historyLimit   = 240
	eventLogLimit  = 50
	pollInterval   = 10 * time.Second
	reconnectDelay = 3 * time.Second
)

// App is the root Bubble Tea model.
type App struct {
	src     Source
	configs map[string]config.PrinterConfig
	ctx     context.Context
	cancel  context.CancelFunc
	stream  chan tea.Msg

	printers   []daemon.PrinterStatus
	history    map[string][]float64
	events     []daemon.Event
	loaded     bool
	connected  bool
	lastUpdate time.Time
	err        error
	note       string

	width        int
	height       int
	active       int
	showHelp     bool
	showEvents   bool
	confirmReset bool

	spinner spinner.Model
}

// NewApp creates the dashboard. printers supplies spool lengths and names
// for the printers the daemon reports.
func NewApp(src Source, printers []config.PrinterConfig) App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent)

	configs := make(map[string]config.PrinterConfig, len(printers))
	for _, p := range printers {
		configs[p.ID] = p
	}

	ctx, cancel := context.WithCancel(context.Background())
	return App{
		src:     src,
		configs: configs,
		ctx:     ctx,
		cancel:  cancel,
		stream:  make(chan tea.Msg, 64),
		history: make(map[string][]float64),
		spinner: sp,
	}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		a.spinner.Tick,
		fetchStatusCmd(a.ctx, a.src),
		subscribeCmd(a.ctx, a.src, a.stream),
		tickCmd(),
	)
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case tea.MouseMsg:
		if msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress && msg.Y == 0 {
			if i := components.TabAtX(a.tabs(), msg.X); i >= 0 {
				a.active = i
				a.confirmReset = false
			}
		}
		return a, nil

	case tea.KeyMsg:
		return a.updateKey(msg)

	case spinner.TickMsg:
		if a.loaded {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case statusMsg:
		if msg.err != nil {
			a.err = msg.err
			return a, nil
		}
		a.err = nil
		a.applyStatus(msg.status)
		return a, nil

	case eventMsg:
		a.connected = true
		a.applyEvent(msg.ev)
		return a, waitForStream(a.stream)

	case streamEndedMsg:
		a.connected = false
		if msg.err != nil {
			a.err = msg.err
		}
		return a, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return a, subscribeCmd(a.ctx, a.src, a.stream)

	case resetDoneMsg:
		if msg.err != nil {
			a.note = "reset failed: " + msg.err.Error()
			return a, nil
		}
		a.replacePrinter(msg.ps)
		delete(a.history, msg.ps.ID)
		a.note = "reset " + msg.ps.Name
		return a, nil

	case tickMsg:
		return a, tea.Batch(fetchStatusCmd(a.ctx, a.src), tickCmd())
	}
	return a, nil
}

func (a App) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" || key == "q" {
		a.cancel()
		return a, tea.Quit
	}

	if a.showHelp {
		a.showHelp = false
		return a, nil
	}

	if a.confirmReset {
		a.confirmReset = false
		if key == "y" || key == "Y" {
			if ps, ok := a.current(); ok {
				return a, resetCmd(a.ctx, a.src, ps.ID)
			}
		}
		a.note = ""
		return a, nil
	}

	switch key {
	case "?":
		a.showHelp = true
	case "right", "l", "tab":
		if len(a.printers) > 0 {
			a.active = (a.active + 1) % len(a.printers)
		}
	case "left", "h", "shift+tab":
		if len(a.printers) > 0 {
			a.active = (a.active - 1 + len(a.printers)) % len(a.printers)
		}
	case "e":
		a.showEvents = !a.showEvents
	case "r":
		a.note = ""
		return a, fetchStatusCmd(a.ctx, a.src)
	case "x":
		if ps, ok := a.current(); ok {
			a.confirmReset = true
			a.note = fmt.Sprintf("reset %s? [y/N]", ps.Name)
		}
	default:
		if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
			if i := int(key[0] - '1'); i < len(a.printers) {
				a.active = i
			}
		}
	}
	return a, nil
}

func (a *App) applyStatus(st daemon.Status) {
	a.loaded = true
	a.lastUpdate = time.Now()
	a.printers = st.Printers
	for _, ps := range st.Printers {
		a.sample(ps.ID, ps.Snapshot)
	}
	if a.active >= len(a.printers) {
		a.active = 0
	}
}

func (a *App) applyEvent(ev daemon.Event) {
	a.lastUpdate = time.Now()
	ps := daemon.PrinterStatus{
		ID:       ev.PrinterID,
		Name:     a.printerName(ev.PrinterID),
		Snapshot: ev.Snapshot,
		Metrics:  projection.Project(ev.Snapshot),
	}
	a.replacePrinter(ps)
	a.sample(ev.PrinterID, ev.Snapshot)

	if ev.Type == daemon.EventSnapshot {
		return
	}
	a.events = append(a.events, ev)
	if len(a.events) > eventLogLimit {
		a.events = a.events[len(a.events)-eventLogLimit:]
	}
}

func (a *App) replacePrinter(ps daemon.PrinterStatus) {
	for i := range a.printers {
		if a.printers[i].ID == ps.ID {
			if ps.Name == "" {
				ps.Name = a.printers[i].Name
			}
			a.printers[i] = ps
			return
		}
	}
	a.loaded = true
	a.printers = append(a.printers, ps)
}

// sample records cumulative energy including the running session.
func (a *App) sample(id string, snap tracker.Snapshot) {
	v := snap.Totals.TotalEnergy
	if snap.Session.IsPrinting {
		v += snap.Current.Energy
	}
	if h := a.history[id]; len(h) > 0 && h[len(h)-1] == v {
		return
	}
	a.history[id] = components.AppendSample(a.history[id], v, historyLimit)
}

func (a App) printerName(id string) string {
	for _, ps := range a.printers {
		if ps.ID == id && ps.Name != "" {
			return ps.Name
		}
	}
	if p, ok := a.configs[id]; ok {
		return p.DisplayName()
	}
	return id
}

func (a App) current() (daemon.PrinterStatus, bool) {
	if a.active < 0 || a.active >= len(a.printers) {
		return daemon.PrinterStatus{}, false
	}
	return a.printers[a.active], true
}

func (a App) tabs() []components.PrinterTab {
	tabs := make([]components.PrinterTab, len(a.printers))
	for i, ps := range a.printers {
		tabs[i] = components.PrinterTab{Name: ps.Name, Printing: ps.Snapshot.Session.IsPrinting}
	}
	return tabs
}

func (a App) contentWidth() int {
	return min(a.width, maxContentWidth)
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}
	if a.width < minTerminalWidth {
		return a.viewTooNarrow()
	}
	if !a.loaded {
		return a.viewLoading()
	}
	if a.showHelp {
		return a.viewHelp()
	}
	return a.viewMain()
}

func (a App) viewTooNarrow() string {
	h := max(a.height, 5)
	msg := fmt.Sprintf(
		"\n  Terminal too narrow (%d cols)\n\n  printmeter needs at least %d columns.\n",
		a.width, minTerminalWidth,
	)
	return padHeight(truncateHeight(msg, h), h)
}

func (a App) viewLoading() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Background(t.Surface).
		Padding(2, 4)
	logoStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface).Bold(true)
	subtitleStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	warnStyle := lipgloss.NewStyle().Foreground(t.Warning).Background(t.Surface)

	var b strings.Builder
	b.WriteString(logoStyle.Render("◈ printmeter"))
	b.WriteString(subtitleStyle.Render(" · print energy & cost"))
	b.WriteString("\n\n")
	b.WriteString(a.spinner.View())
	b.WriteString(subtitleStyle.Render(" Connecting to daemon..."))
	if a.err != nil {
		b.WriteString("\n\n")
		b.WriteString(warnStyle.Render(a.err.Error()))
		b.WriteString("\n")
		b.WriteString(subtitleStyle.Render("Start it with `printmeter daemon --detach`."))
	}

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) viewHelp() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Background(t.Surface).
		Padding(1, 3)
	titleStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface).Bold(true)
	keyStyle := lipgloss.NewStyle().Foreground(t.KeyHint).Background(t.Surface).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)

	var b strings.Builder
	b.WriteString(titleStyle.Render("◈ Keyboard Shortcuts"))
	b.WriteString("\n\n")
	bindings := []struct{ key, desc string }{
		{"1-9", "Jump to printer"},
		{"← → tab", "Previous / Next printer"},
		{"e", "Toggle event log"},
		{"r", "Refresh now"},
		{"x", "Reset printer statistics"},
		{"?", "Toggle help"},
		{"q", "Quit"},
	}
	for _, bind := range bindings {
		fmt.Fprintf(&b, "  %s  %s\n",
			keyStyle.Render(fmt.Sprintf("%-8s", bind.key)),
			descStyle.Render(bind.desc))
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Press any key to close"))

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) viewMain() string {
	t := theme.Active
	w := a.width
	cw := a.contentWidth()

	header := components.RenderTabBar(a.tabs(), a.active, w)

	age := ""
	if !a.lastUpdate.IsZero() {
		age = cli.FormatDuration(int64(time.Since(a.lastUpdate).Seconds()))
	}
	note := a.note
	if note == "" && a.err != nil {
		note = a.err.Error()
	}
	statusBar := components.RenderStatusBar(w, a.connected, age, note)

	contentH := max(a.height-lipgloss.Height(header)-lipgloss.Height(statusBar), minContentHeight)

	var content string
	ps, ok := a.current()
	switch {
	case !ok:
		content = "\n  The daemon is not tracking any printers. Run `printmeter printers add`."
	case a.showEvents:
		content = a.renderEvents(cw, contentH)
	default:
		content = a.renderPrinter(ps, cw, contentH)
	}

	content = padHeight(truncateHeight(content, contentH), contentH)
	content = fillLinesWithBackground(content, cw, t.Background)
	content = lipgloss.Place(w, contentH, lipgloss.Center, lipgloss.Top, content,
		lipgloss.WithWhitespaceBackground(t.Background))

	output := lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
	return lipgloss.Place(w, a.height, lipgloss.Left, lipgloss.Top, output,
		lipgloss.WithWhitespaceBackground(t.Background))
}

// ─── Commands ───────────────────────────────────────────────────

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

func fetchStatusCmd(ctx context.Context, src Source) tea.Cmd {
	return func() tea.Msg {
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		st, err := src.Status(rctx)
		return statusMsg{status: st, err: err}
	}
}

func resetCmd(ctx context.Context, src Source, id string) tea.Cmd {
	return func() tea.Msg {
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		ps, err := src.Reset(rctx, id)
		return resetDoneMsg{ps: ps, err: err}
	}
}

// subscribeCmd starts the event stream in a goroutine that feeds sub, and
// returns the first message from it.
func subscribeCmd(ctx context.Context, src Source, sub chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		go func() {
			err := src.Subscribe(ctx, func(ev daemon.Event) {
				select {
				case sub <- eventMsg{ev: ev}:
				case <-ctx.Done():
				}
			})
			select {
			case sub <- streamEndedMsg{err: err}:
			case <-ctx.Done():
			}
		}()
		return <-sub
	}
}

func waitForStream(sub chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-sub
	}
}

// ─── Helpers ────────────────────────────────────────────────────

func truncateHeight(s string, limit int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= limit {
		return s
	}
	return strings.Join(lines[:limit], "\n")
}

func padHeight(s string, h int) string {
	lines := strings.Count(s, "\n") + 1
	if lines >= h {
		return s
	}
	return s + strings.Repeat("\n", h-lines)
}

// fillLinesWithBackground pads each line to width w with background color.
func fillLinesWithBackground(s string, w int, bg lipgloss.Color) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = lipgloss.PlaceHorizontal(w, lipgloss.Left, line, lipgloss.WithWhitespaceBackground(bg))
	}
	return strings.Join(lines, "\n")
}
