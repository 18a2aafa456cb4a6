package gridfall

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Left          key.Binding
	Right         key.Binding
	SoftDown      key.Binding
	HardDrop      key.Binding
	Rotate        key.Binding
	RotateCounter key.Binding

	Pause key.Binding
	Reset key.Binding
	Help  key.Binding
	Quit  key.Binding
}

var _ interface {
	ShortHelp() []key.Binding
	FullHelp() [][]key.Binding
} = KeyMap{}

// DefaultKeyMap accepts arrows as well as the home row layout
//
//	[ d ]  [ f ]   [ g ]     [ j ]  [ k ]
//	←move  move→   soft↓     ↶ CCW  CW ↷
//	          [__ space __] hard drop
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Left: key.NewBinding(
			key.WithKeys("left", "d"),
			key.WithHelp("←/d", "left"),
		),
		Right: key.NewBinding(
			key.WithKeys("right", "f"),
			key.WithHelp("→/f", "right"),
		),
		SoftDown: key.NewBinding(
			key.WithKeys("down", "g"),
			key.WithHelp("↓/g", "soft drop"),
		),
		HardDrop: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "hard drop"),
		),
		Rotate: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "rotate ↷"),
		),
		RotateCounter: key.NewBinding(
			key.WithKeys("j"),
			key.WithHelp("j", "rotate ↶"),
		),
		Pause: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "pause"),
		),
		Reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "restart"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more keys"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Left, k.Right, k.Rotate, k.HardDrop, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Left, k.Right, k.SoftDown, k.HardDrop},
		{k.Rotate, k.RotateCounter},
		{k.Pause, k.Reset, k.Help, k.Quit},
	}
}
