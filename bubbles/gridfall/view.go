package gridfall

import (
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/ghthor/gridfall/piece"
)

const (
	Block      = "  "
	ActiveMark = "▐▌"
	Empty      = " ·"
)

var (
	Bold  = lipgloss.NewStyle().Bold(true)
	Faint = lipgloss.NewStyle().Faint(true)

	StyleEmpty = lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(238))

	StyleGameOver = lipgloss.NewStyle().
			Bold(true).
			Padding(1, 3).
			Border(lipgloss.DoubleBorder()).
			Align(lipgloss.Center)

	// https://github.com/fidian/ansi?tab=readme-ov-file#--color-codes
	Colors = map[piece.Color]lipgloss.Style{
		piece.Blue:   block(27),
		piece.Orange: block(208),
		piece.Purple: block(93),
		piece.Red:    block(160),
		piece.Teal:   block(37),
		piece.Yellow: block(220),
	}
)

func block(c lipgloss.ANSIColor) lipgloss.Style {
	return lipgloss.NewStyle().Background(c).Foreground(lipgloss.ANSIColor(255))
}

type tableView struct {
	board string
	side  string
}

var _ table.Data = tableView{}

func (t tableView) At(row, col int) string {
	switch col {
	case 0:
		return t.board
	case 1:
		return t.side
	default:
		return ""
	}
}

func (t tableView) Rows() int    { return 1 }
func (t tableView) Columns() int { return 2 }

func newTable() *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 1 {
				return lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
			}
			return lipgloss.NewStyle()
		})
}

// staticView lets a rendered string sit in an overlay.
type staticView string

func (v staticView) Init() tea.Cmd                       { return nil }
func (v staticView) Update(tea.Msg) (tea.Model, tea.Cmd) { return v, nil }
func (v staticView) View() string                        { return string(v) }

func (m *Model) View() string {
	if !m.render {
		return m.b.String()
	}

	m.b.Reset()
	m.PrintBoard(&m.b)
	m.tableView.board = m.b.String()

	m.b.Reset()
	m.PrintSide(&m.b)
	m.tableView.side = m.b.String()

	m.b.Reset()
	m.table.Data(m.tableView)
	v := m.table.Render()

	if m.obs.GameOver {
		m.overlay.Foreground = staticView(StyleGameOver.Render("GAME OVER\n\n" +
			Faint.Render("press "+m.keys.Reset.Help().Key+" to restart")))
		m.overlay.Background = staticView(v)
		v = m.overlay.View()
	}

	m.b.WriteString(v)
	m.b.WriteString("\n")
	m.b.WriteString(m.help.View(m.keys))

	m.render = false
	return m.b.String()
}

// PrintBoard draws the grid, two terminal columns per cell.
func (m *Model) PrintBoard(w io.Writer) {
	for r, row := range m.obs.Grid {
		for c, color := range row {
			if color == piece.ColorNone {
				fmt.Fprint(w, StyleEmpty.Render(Empty))
				continue
			}
			mark := Block
			if m.obs.IsActive(piece.Point{Row: r, Col: c}) {
				mark = ActiveMark
			}
			fmt.Fprint(w, Colors[color].Render(mark))
		}
		if r+1 != len(m.obs.Grid) {
			fmt.Fprintln(w)
		}
	}
}

func (m *Model) PrintSide(w io.Writer) {
	if m.player != "" {
		fmt.Fprintln(w, Bold.Render(m.player))
		fmt.Fprintln(w)
	}

	status := m.obs.State.String()
	if m.paused {
		status = "paused"
	}
	fmt.Fprintf(w, "state: %s\n", status)
	fmt.Fprintf(w, "piece: %s\n", m.pieceName())
	fmt.Fprintf(w, "last lock: %d lines\n", m.obs.LinesCleared)
	fmt.Fprintf(w, "fall: %s\n", m.fall)

	if m.feed.len() == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, Faint.Render("recent locks"))
	for e := range m.feed.recent() {
		fmt.Fprintf(w, "%s %-6s %d\n", Faint.Render(e.At.Format(time.TimeOnly)), e.Kind, e.Lines)
	}
}

func (m *Model) pieceName() string {
	if len(m.obs.Active) == 0 {
		return "-"
	}
	return m.obs.Kind.String()
}
