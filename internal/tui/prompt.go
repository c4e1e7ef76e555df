package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Shared styles for prompts and the end-of-run summary.
var (
	QuestionStyle = lipgloss.NewStyle().Bold(true)
	HelpKey       = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	HelpDesc      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	CursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	SuccessStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	WarnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	FailStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// IsInteractive reports whether stdin is attached to a terminal. Prompts
// are only offered interactively; otherwise callers fall back to their
// non-interactive default.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// confirmKeyMap defines key bindings for the confirm prompt.
type confirmKeyMap struct {
	Yes key.Binding
	No  key.Binding
}

var defaultConfirmKeys = confirmKeyMap{
	Yes: key.NewBinding(
		key.WithKeys("y", "Y"),
		key.WithHelp("y", "yes"),
	),
	No: key.NewBinding(
		key.WithKeys("n", "N", "esc", "ctrl+c"),
		key.WithHelp("n/esc", "no"),
	),
}

type confirmModel struct {
	question string
	keys     confirmKeyMap
	answer   bool
	done     bool
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, m.keys.Yes):
			m.answer = true
			m.done = true
			return m, tea.Quit
		case key.Matches(keyMsg, m.keys.No):
			m.answer = false
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(QuestionStyle.Render(m.question))
	b.WriteString(" ")
	b.WriteString(HelpKey.Render("y"))
	b.WriteString(HelpDesc.Render(" to confirm, "))
	b.WriteString(HelpKey.Render("n"))
	b.WriteString(HelpDesc.Render(" to skip"))
	b.WriteString("\n")
	return b.String()
}

// Confirm asks a yes/no question on the terminal and blocks until answered.
func Confirm(question string) (bool, error) {
	final, err := tea.NewProgram(confirmModel{question: question, keys: defaultConfirmKeys}).Run()
	if err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return final.(confirmModel).answer, nil
}

type selectModel struct {
	title   string
	options []string
	cursor  int
	choice  int
	done    bool
}

func (m selectModel) Init() tea.Cmd {
	return nil
}

func (m selectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.options)-1 {
				m.cursor++
			}
		case "enter":
			m.choice = m.cursor
			m.done = true
			return m, tea.Quit
		case "q", "esc", "ctrl+c":
			m.choice = -1
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m selectModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(QuestionStyle.Render(m.title))
	b.WriteString("\n")
	for i, option := range m.options {
		if i == m.cursor {
			b.WriteString(CursorStyle.Render("> " + option))
		} else {
			b.WriteString("  " + option)
		}
		b.WriteString("\n")
	}
	b.WriteString(HelpDesc.Render("↑/↓ to move, enter to select, esc to cancel"))
	b.WriteString("\n")
	return b.String()
}

// Select offers a list choice on the terminal and returns the chosen index,
// or an error when the selection is cancelled.
func Select(title string, options []string) (int, error) {
	final, err := tea.NewProgram(selectModel{title: title, options: options, choice: -1}).Run()
	if err != nil {
		return -1, fmt.Errorf("prompt failed: %w", err)
	}
	choice := final.(selectModel).choice
	if choice < 0 {
		return -1, fmt.Errorf("selection cancelled")
	}
	return choice, nil
}
