package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

type fakeChat struct {
	reply string
	err   error
	sent  []string
}

func (f *fakeChat) SendMessage(ctx context.Context, userID, sender, text string) (string, error) {
	f.sent = append(f.sent, text)
	return f.reply, f.err
}

func (f *fakeChat) ClearMessages(ctx context.Context, userID string) (string, error) {
	return "Hello, Dr. Lee! How can I assist you today?", f.err
}

func sized(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func typeText(m Model, text string) Model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(Model)
}

func TestModel_SendAndReply(t *testing.T) {
	fc := &fakeChat{reply: "Take 500mg every 6 hours."}
	m := sized(NewModel(context.Background(), fc, "c1", "Dr. Lee", []Line{{Sender: "bot", Text: "Hello, Dr. Lee! How can I assist you today?"}}))

	m = typeText(m, "fever 3 days")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if !m.Waiting {
		t.Error("expected model to wait for the reply")
	}
	if len(m.Lines) != 2 || m.Lines[1].Text != "fever 3 days" {
		t.Fatalf("expected user line appended, got %+v", m.Lines)
	}
	if cmd == nil {
		t.Fatal("expected a command to send the message")
	}

	msg := cmd()
	if _, ok := msg.(replyMsg); !ok {
		t.Fatalf("expected replyMsg, got %T", msg)
	}
	next, _ = m.Update(msg)
	m = next.(Model)
	if m.Waiting || m.Lines[2].Text != "Take 500mg every 6 hours." {
		t.Errorf("expected reply shown, got %+v", m.Lines)
	}
	if fc.sent[0] != "fever 3 days" {
		t.Errorf("expected message sent, got %v", fc.sent)
	}
	if !strings.Contains(m.View(), "Take 500mg") {
		t.Error("expected reply in view")
	}
}

func TestModel_EmptyInputIgnored(t *testing.T) {
	m := sized(NewModel(context.Background(), &fakeChat{}, "c1", "Dr. Lee", nil))
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil || next.(Model).Waiting {
		t.Error("expected empty input to be ignored")
	}
}

func TestModel_Error(t *testing.T) {
	fc := &fakeChat{err: errors.New("store offline")}
	m := sized(NewModel(context.Background(), fc, "c1", "Dr. Lee", nil))
	m = typeText(m, "hi")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)

	next, _ = m.Update(cmd())
	m = next.(Model)
	if m.Err == nil || m.Waiting {
		t.Errorf("expected error state, got err=%v waiting=%v", m.Err, m.Waiting)
	}
	if !strings.Contains(m.View(), "store offline") {
		t.Error("expected error in view")
	}
}

func TestModel_Clear(t *testing.T) {
	m := sized(NewModel(context.Background(), &fakeChat{}, "c1", "Dr. Lee", []Line{{Sender: "user", Text: "old"}}))
	m = typeText(m, "/clear")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)

	next, _ = m.Update(cmd())
	m = next.(Model)
	if len(m.Lines) != 1 || m.Lines[0].Sender != "bot" {
		t.Errorf("expected only the greeting after clear, got %+v", m.Lines)
	}
}

func TestModel_Quit(t *testing.T) {
	m := sized(NewModel(context.Background(), &fakeChat{}, "c1", "Dr. Lee", nil))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}
