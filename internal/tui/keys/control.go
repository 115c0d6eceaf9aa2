package keys

import "github.com/charmbracelet/bubbles/key"

// ControlKeys drive the connection and manual control view
type ControlKeys struct {
	CommonKeys
	Up         key.Binding
	Down       key.Binding
	Refresh    key.Binding
	Detect     key.Binding
	Connect    key.Binding
	Disconnect key.Binding
	Query      key.Binding
	Position   key.Binding
	Clear      key.Binding
}

func NewControlKeys() ControlKeys {
	return ControlKeys{
		CommonKeys: NewCommonKeys(),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rescan ports"),
		),
		Detect: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "detect"),
		),
		Connect: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "connect"),
		),
		Disconnect: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "disconnect"),
		),
		Query: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "query state"),
		),
		Position: key.NewBinding(
			key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"),
			key.WithHelp("1-9", "set position"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear log"),
		),
	}
}

func (k ControlKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Detect, k.Connect, k.Position, k.Query, k.SwitchView, k.Quit}
}

func (k ControlKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Refresh, k.Detect},
		{k.Connect, k.Disconnect, k.Position, k.Query},
		{k.Clear, k.SwitchView, k.Help, k.Quit},
	}
}
