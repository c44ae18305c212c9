// Package tui is the interactive terminal chat.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Chatter is the part of the chat service the terminal drives.
type Chatter interface {
	SendMessage(ctx context.Context, userID, sender, text string) (string, error)
	ClearMessages(ctx context.Context, userID string) (string, error)
}

// Line is one rendered transcript entry.
type Line struct {
	Sender string
	Text   string
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5FAFFF"))

	botStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#04B575"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

type replyMsg string
type clearedMsg string
type errMsg struct{ err error }

type Model struct {
	ctx     context.Context
	chat    Chatter
	chatID  string
	name    string
	Lines   []Line
	Err     error
	Waiting bool

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	ready    bool
	quitting bool
}

// NewModel opens a chat view. history is shown before the first prompt.
func NewModel(ctx context.Context, c Chatter, chatID, name string, history []Line) Model {
	in := textinput.New()
	in.Placeholder = "Describe the patient's symptoms..."
	in.Prompt = "> "
	in.CharLimit = 2000
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:     ctx,
		chat:    c,
		chatID:  chatID,
		name:    name,
		Lines:   append([]Line(nil), history...),
		input:   in,
		spinner: sp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			if m.Waiting {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			m.Err = nil
			switch text {
			case "/quit":
				m.quitting = true
				return m, tea.Quit
			case "/clear":
				m.Waiting = true
				m.refresh()
				return m, m.clear()
			}
			m.Lines = append(m.Lines, Line{Sender: "user", Text: text})
			m.Waiting = true
			m.refresh()
			return m, m.send(text)
		}

	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-6)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 6
		}
		m.input.Width = msg.Width - 4
		m.refresh()

	case replyMsg:
		m.Waiting = false
		m.Lines = append(m.Lines, Line{Sender: "bot", Text: string(msg)})
		m.refresh()

	case clearedMsg:
		m.Waiting = false
		m.Lines = []Line{{Sender: "bot", Text: string(msg)}}
		m.refresh()

	case errMsg:
		m.Waiting = false
		m.Err = msg.err
		m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) send(text string) tea.Cmd {
	return func() tea.Msg {
		reply, err := m.chat.SendMessage(m.ctx, m.chatID, "user", text)
		if err != nil {
			return errMsg{err}
		}
		return replyMsg(reply)
	}
}

func (m Model) clear() tea.Cmd {
	return func() tea.Msg {
		greeting, err := m.chat.ClearMessages(m.ctx, m.chatID)
		if err != nil {
			return errMsg{err}
		}
		return clearedMsg(greeting)
	}
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m Model) transcript() string {
	var b strings.Builder
	for _, l := range m.Lines {
		if l.Sender == "user" {
			b.WriteString(userStyle.Render(m.name + ":"))
		} else {
			b.WriteString(botStyle.Render("Syno:"))
		}
		b.WriteString(" " + l.Text + "\n\n")
	}
	return b.String()
}

func (m Model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	header := titleStyle.Render(fmt.Sprintf(" Syno · %s ", m.name))
	status := helpStyle.Render(" enter send · /clear reset · esc quit")
	if m.Waiting {
		status = " " + m.spinner.View() + " Syno is thinking..."
	}
	if m.Err != nil {
		status = errorStyle.Render(" " + m.Err.Error())
	}

	view := fmt.Sprintf("%s\n%s\n%s\n%s", header, m.viewport.View(), status, m.input.View())
	if m.quitting {
		return view + "\n  Goodbye.\n"
	}
	return view
}
