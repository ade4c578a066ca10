// Package tui is the terminal dashboard: a live table of sessions across
// every registered project.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/worklog/internal/overview"
	"github.com/Iron-Ham/worklog/internal/tui/styles"
	"github.com/Iron-Ham/worklog/internal/watch"
)

const defaultInterval = 5 * time.Second

// Source builds the overview the dashboard renders.
type Source interface {
	Build(ctx context.Context) (*overview.Overview, error)
}

// Messages

type tickMsg time.Time

type overviewMsg struct {
	overview *overview.Overview
	err      error
}

type changeMsg watch.Change

// Model is the bubbletea model of the dashboard.
type Model struct {
	ctx      context.Context
	source   Source
	changes  <-chan watch.Change
	interval time.Duration
	now      func() time.Time

	table       table.Model
	filter      Filter
	rows        []Row
	overview    *overview.Overview
	err         error
	lastRefresh time.Time
	width       int
	height      int
}

// Option configures a Model.
type Option func(*Model)

// WithChanges refreshes the dashboard whenever a change arrives on ch.
func WithChanges(ch <-chan watch.Change) Option { return func(m *Model) { m.changes = ch } }

// WithInterval sets the periodic refresh interval.
func WithInterval(d time.Duration) Option {
	return func(m *Model) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithClock overrides the clock used for ages.
func WithClock(now func() time.Time) Option { return func(m *Model) { m.now = now } }

// NewModel creates the dashboard model.
func NewModel(ctx context.Context, source Source, opts ...Option) Model {
	m := Model{
		ctx:      ctx,
		source:   source,
		interval: defaultInterval,
		now:      time.Now,
		width:    100,
		height:   24,
	}
	for _, opt := range opts {
		opt(&m)
	}

	ts := table.DefaultStyles()
	ts.Header = styles.TableHeader
	ts.Selected = styles.TableSelected
	m.table = table.New(
		table.WithColumns(columns(m.width)),
		table.WithFocused(true),
		table.WithHeight(m.tableHeight()),
		table.WithStyles(ts),
	)
	return m
}

// Run starts the dashboard and blocks until the user quits or ctx ends.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// Commands

func (m Model) load() tea.Cmd {
	return func() tea.Msg {
		ov, err := m.source.Build(m.ctx)
		return overviewMsg{overview: ov, err: err}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForChange(ch <-chan watch.Change) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		c, ok := <-ch
		if !ok {
			return nil
		}
		return changeMsg(c)
	}
}

// Init loads the first overview and starts the refresh sources.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.tick(), waitForChange(m.changes))
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.load()
		case "tab":
			m.filter = m.filter.Next()
			m.refreshTable()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetColumns(columns(m.width - 2))
		m.table.SetHeight(m.tableHeight())
		return m, nil

	case overviewMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.overview = msg.overview
		m.rows = Rows(msg.overview)
		m.lastRefresh = m.now()
		m.refreshTable()
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.load(), m.tick())

	case changeMsg:
		return m, tea.Batch(m.load(), waitForChange(m.changes))
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) refreshTable() {
	m.table.SetRows(tableRows(m.rows, m.filter, m.now()))
	if m.table.Cursor() >= len(m.table.Rows()) {
		m.table.SetCursor(0)
	}
}

// tableHeight leaves room for the title, tabs, status bar and help.
func (m Model) tableHeight() int {
	h := m.height - 9
	if h < 3 {
		h = 3
	}
	return h
}
