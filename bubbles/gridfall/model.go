// Package gridfall is a bubbletea front end for a gridsim.Simulation. It owns
// the gravity timer and the key mapping; the simulation owns the game.
package gridfall

import (
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/log"
	"github.com/ghthor/gridfall/gridsim"
	overlay "github.com/rmhubbert/bubbletea-overlay"
)

const (
	DefaultFallInterval = 500 * time.Millisecond

	feedSize = 5
)

type (
	ResetMsg       int
	TogglePauseMsg int

	// SetFallIntervalMsg changes the gravity cadence. A tick that is
	// already scheduled keeps its old delay; the next one uses the new one.
	SetFallIntervalMsg time.Duration
)

// FallMsg is a gravity tick. Seq ties it to the schedule that created it so a
// tick made obsolete by a drop or a reset is ignored.
type FallMsg struct {
	time.Time
	Seq int64
}

func NewFall(d time.Duration, seq int64) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return FallMsg{t, seq} })
}

type Option func(*Model)

func WithFallInterval(d time.Duration) Option {
	return func(m *Model) {
		if d > 0 {
			m.fall = d
		}
	}
}

// WithPlayer sets the name shown beside the board.
func WithPlayer(name string) Option {
	return func(m *Model) {
		m.player = name
	}
}

func WithKeyMap(k KeyMap) Option {
	return func(m *Model) {
		m.keys = k
	}
}

type Model struct {
	b strings.Builder

	sim *gridsim.Simulation
	obs gridsim.Observation

	fall   time.Duration
	seq    int64
	paused bool

	player string
	feed   *lockFeed

	keys KeyMap
	help help.Model

	render  bool
	table   *table.Table
	overlay *overlay.Model
	tableView

	Width, Height int
}

var _ tea.Model = &Model{}

func New(sim *gridsim.Simulation, opts ...Option) *Model {
	m := &Model{
		sim:  sim,
		fall: DefaultFallInterval,
		keys: DefaultKeyMap(),
		help: help.New(),
		feed: newLockFeed(feedSize),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	m.table = newTable()
	m.overlay = overlay.New(nil, nil, overlay.Center, overlay.Center, 0, 0)
	m.render = true

	o, err := m.sim.Spawn()
	m.apply(o, err)
	if m.obs.GameOver {
		return nil
	}
	return m.nextFall()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	return m.UpdateGridFall(msg)
}

func (m *Model) UpdateGridFall(msg tea.Msg) (*Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width, m.Height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.render = true

	case tea.KeyMsg:
		return m, m.HandleKey(msg)

	case FallMsg:
		return m, m.HandleFall(msg)

	case ResetMsg:
		return m, m.Reset()

	case TogglePauseMsg:
		return m, m.TogglePause()

	case SetFallIntervalMsg:
		if d := time.Duration(msg); d > 0 {
			m.fall = d
		}
	}
	return m, nil
}

func (m *Model) HandleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Reset):
		return m.Reset()
	case key.Matches(msg, m.keys.Pause):
		return m.TogglePause()
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.render = true
		return nil
	}

	if m.paused || m.obs.GameOver {
		return nil
	}

	switch {
	case key.Matches(msg, m.keys.Left):
		m.apply(m.sim.Move(gridsim.Left))
	case key.Matches(msg, m.keys.Right):
		m.apply(m.sim.Move(gridsim.Right))
	case key.Matches(msg, m.keys.Rotate):
		m.apply(m.sim.Rotate())
	case key.Matches(msg, m.keys.RotateCounter):
		m.apply(m.sim.RotateCounter())

	// Drops restart the gravity timer so the piece doesn't fall twice in
	// quick succession.
	case key.Matches(msg, m.keys.SoftDown):
		m.apply(m.sim.ForceDown())
		return m.nextFall()
	case key.Matches(msg, m.keys.HardDrop):
		m.apply(m.sim.HardDrop())
		return m.nextFall()
	}
	return nil
}

func (m *Model) HandleFall(msg FallMsg) tea.Cmd {
	if msg.Seq != m.seq || m.paused {
		// canceled
		return nil
	}
	m.apply(m.sim.Tick())
	return m.nextFall()
}

// nextFall schedules the next gravity tick and cancels any pending one.
func (m *Model) nextFall() tea.Cmd {
	m.seq++
	if m.obs.GameOver || m.paused {
		return nil
	}
	return NewFall(m.fall, m.seq)
}

func (m *Model) TogglePause() tea.Cmd {
	m.paused = !m.paused
	m.render = true
	return m.nextFall()
}

func (m *Model) Reset() tea.Cmd {
	m.feed.reset()
	m.paused = false
	m.apply(m.sim.Reset(), nil)
	m.apply(m.sim.Spawn())
	log.Debug("gridfall reset", "player", m.player)
	return m.nextFall()
}

func (m *Model) apply(o gridsim.Observation, err error) {
	prev := m.obs
	m.obs = o

	if err != nil && !errors.Is(err, gridsim.ErrGameOver) {
		log.Warn("gridfall command", "error", err, "player", m.player)
	}
	if o.Changed || o.GameOver != prev.GameOver {
		m.render = true
	}
	if o.Locked {
		m.feed.push(lockEvent{At: time.Now(), Kind: prev.Kind, Lines: o.LinesCleared})
	}
	if o.GameOver && !prev.GameOver {
		log.Info("game over", "player", m.player)
	}
}

// Observation is the board as of the last command.
func (m *Model) Observation() gridsim.Observation {
	return m.obs
}

func (m *Model) Paused() bool { return m.paused }
