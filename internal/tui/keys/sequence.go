package keys

import "github.com/charmbracelet/bubbles/key"

// SequenceKeys drive the sequence editor
type SequenceKeys struct {
	CommonKeys
	Enter    key.Binding
	Edit     key.Binding
	Remove   key.Binding
	MoveUp   key.Binding
	MoveDown key.Binding
	Link     key.Binding
	Unlink   key.Binding
	Run      key.Binding
	Loop     key.Binding
	Stop     key.Binding
	Demo     key.Binding
	Clear    key.Binding
	Up       key.Binding
	Down     key.Binding
}

func NewSequenceKeys() SequenceKeys {
	return SequenceKeys{
		CommonKeys: NewCommonKeys(),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "save step"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "edit step"),
		),
		Remove: key.NewBinding(
			key.WithKeys("x", "delete"),
			key.WithHelp("x", "remove step"),
		),
		MoveUp: key.NewBinding(
			key.WithKeys("K", "shift+up"),
			key.WithHelp("K", "move up"),
		),
		MoveDown: key.NewBinding(
			key.WithKeys("J", "shift+down"),
			key.WithHelp("J", "move down"),
		),
		Link: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "link to next row"),
		),
		Unlink: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "unlink"),
		),
		Run: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "run once"),
		),
		Loop: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "run loop"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s", " "),
			key.WithHelp("s/space", "stop"),
		),
		Demo: key.NewBinding(
			key.WithKeys("D"),
			key.WithHelp("D", "load demo"),
		),
		Clear: key.NewBinding(
			key.WithKeys("C"),
			key.WithHelp("C", "clear sequence"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
	}
}

func (k SequenceKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.InsertMode, k.Edit, k.Run, k.Loop, k.Stop, k.SwitchView, k.Quit}
}

func (k SequenceKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.InsertMode, k.Edit, k.Remove, k.Clear, k.Demo},
		{k.Up, k.Down, k.MoveUp, k.MoveDown, k.Link, k.Unlink},
		{k.Run, k.Loop, k.Stop, k.Escape},
		{k.SwitchView, k.Help, k.Quit},
	}
}
