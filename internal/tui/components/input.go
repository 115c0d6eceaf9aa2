package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-valve"
	"github.com/allbin/go-valve/internal/tui/colors"
	"github.com/allbin/go-valve/internal/tui/styles"
	"github.com/allbin/go-valve/sequence"
)

// ParseStepInput reads "<position> <seconds>", e.g. "B 1,5".
func ParseStepInput(s, positions string) (sequence.Step, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return sequence.Step{}, fmt.Errorf("expected <position> <seconds>, got %q", s)
	}
	pos, err := valve.ParsePosition(fields[0])
	if err != nil {
		return sequence.Step{}, err
	}
	if !strings.ContainsRune(positions, rune(pos)) {
		return sequence.Step{}, fmt.Errorf("%w: %s (valve has %s)", valve.ErrInvalidPosition, pos, positions)
	}
	d, err := sequence.ParseSeconds(fields[1])
	if err != nil {
		return sequence.Step{}, err
	}
	return sequence.NewStep(pos, d)
}

// Input edits one step in the sequence editor
type Input struct {
	textInput     textinput.Model
	editing       sequence.NodeID
	history       []string
	historyIndex  int
	currentInput  string // Store current input when navigating history
	terminalWidth int
}

func NewInput(placeholder string) *Input {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 32
	ti.Prompt = "" // We handle prompt styling separately

	return &Input{
		textInput:    ti,
		historyIndex: -1,
	}
}

func (i *Input) SetWidth(width int) {
	i.terminalWidth = width
	// Account for: border(2) + padding(2) + prompt(1) + space(1) = 6 characters
	usableWidth := width - 6
	if usableWidth < 20 {
		usableWidth = 20
	}
	i.textInput.Width = usableWidth
}

// StartAdd focuses the input for a new step.
func (i *Input) StartAdd() {
	i.editing = 0
	i.textInput.SetValue("")
	i.textInput.Focus()
}

// StartEdit focuses the input prefilled with an existing step.
func (i *Input) StartEdit(id sequence.NodeID, step sequence.Step) {
	i.editing = id
	i.textInput.SetValue(fmt.Sprintf("%s %.2f", step.Position, step.Duration.Seconds()))
	i.textInput.CursorEnd()
	i.textInput.Focus()
}

// Editing returns the node being edited, or 0 when adding.
func (i *Input) Editing() sequence.NodeID {
	return i.editing
}

func (i *Input) Blur() {
	i.textInput.Blur()
}

func (i *Input) Value() string {
	return i.textInput.Value()
}

func (i *Input) SetValue(value string) {
	i.textInput.SetValue(value)
}

func (i *Input) Update(msg tea.Msg) (*Input, tea.Cmd) {
	var cmd tea.Cmd
	i.textInput, cmd = i.textInput.Update(msg)
	return i, cmd
}

func (i *Input) ViewWithMode(isInsertMode bool) string {
	promptStyle := lipgloss.NewStyle().
		Foreground(colors.Green).
		Bold(true)
	prompt := "+"
	if i.editing != 0 {
		prompt = "~"
		promptStyle = promptStyle.Foreground(colors.Yellow)
	}
	styledPrompt := promptStyle.Render(prompt)

	var inputContent string
	if isInsertMode {
		inputContent = lipgloss.JoinHorizontal(lipgloss.Left, styledPrompt, " ", i.textInput.View())
	} else {
		instruction := lipgloss.NewStyle().
			Foreground(colors.Overlay0).
			Render("Press 'a' to add a step, 'e' to edit the selected one")
		inputContent = lipgloss.JoinHorizontal(lipgloss.Left, styledPrompt, " ", instruction)
	}

	// RoundedBorder adds 2 characters and padding another 2
	adjustedWidth := i.terminalWidth - 4
	if adjustedWidth < 10 {
		adjustedWidth = 10
	}

	inputStyle := styles.InputStyle.
		Width(adjustedWidth).
		AlignHorizontal(lipgloss.Left)
	if isInsertMode {
		inputStyle = inputStyle.BorderForeground(colors.Green)
	}
	return inputStyle.Render(inputContent)
}

// AddToHistory adds an entry to the history if it's not empty or a duplicate
func (i *Input) AddToHistory(entry string) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return
	}
	if len(i.history) > 0 && i.history[len(i.history)-1] == entry {
		return
	}

	i.history = append(i.history, entry)
	if len(i.history) > 100 {
		i.history = i.history[1:]
	}
	i.historyIndex = -1
	i.currentInput = ""
}

// NavigateHistoryUp moves up in input history
func (i *Input) NavigateHistoryUp() {
	if len(i.history) == 0 {
		return
	}

	if i.historyIndex == -1 {
		i.currentInput = i.textInput.Value()
		i.historyIndex = len(i.history) - 1
	} else if i.historyIndex > 0 {
		i.historyIndex--
	}

	i.textInput.SetValue(i.history[i.historyIndex])
}

// NavigateHistoryDown moves down in input history
func (i *Input) NavigateHistoryDown() {
	if len(i.history) == 0 || i.historyIndex == -1 {
		return
	}

	if i.historyIndex < len(i.history)-1 {
		i.historyIndex++
		i.textInput.SetValue(i.history[i.historyIndex])
	} else {
		i.historyIndex = -1
		i.textInput.SetValue(i.currentInput)
		i.currentInput = ""
	}
}
