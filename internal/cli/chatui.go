package cli

import (
	"context"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/bizlink/bizchat-go/internal/chat"
	"github.com/bizlink/bizchat-go/internal/notify"
	"github.com/bizlink/bizchat-go/internal/realtime"
)

// Theme holds the color scheme for the chat display.
type Theme struct {
	Mine    lipgloss.Color
	Theirs  lipgloss.Color
	Pending lipgloss.Color
	Failed  lipgloss.Color
	Status  lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Mine:    lipgloss.Color("#00D787"), // green
	Theirs:  lipgloss.Color("#5FAFD7"), // light blue
	Pending: lipgloss.Color("#6C6C6C"), // dim gray
	Failed:  lipgloss.Color("#FF005F"), // red
	Status:  lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) mineStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Mine)
}

func (t Theme) theirsStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Theirs)
}

func (t Theme) pendingStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Pending).Italic(true)
}

func (t Theme) failedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Failed)
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

// logChangedMsg signals the active message log changed from a remote event.
type logChangedMsg struct{}

// feedChangedMsg signals the notification feed changed.
type feedChangedMsg struct{}

// connStateMsg carries connection state transitions into the UI.
type connStateMsg struct {
	state  realtime.State
	reason string
}

// sendResultMsg carries a send acknowledgement back into the UI loop.
type sendResultMsg struct {
	tempID string
	ack    realtime.AckResult
	err    error
}

// chatModel is the bubbletea model for the interactive chat.
type chatModel struct {
	conn           *realtime.Conn
	rec            *chat.Reconciler
	agg            *notify.Aggregator
	userID         string
	conversationID string

	input    textinput.Model
	theme    Theme
	state    realtime.State
	quitting bool
}

func newChatModel(conn *realtime.Conn, rec *chat.Reconciler, agg *notify.Aggregator, userID, conversationID string) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message"
	ti.Focus()

	return chatModel{
		conn:           conn,
		rec:            rec,
		agg:            agg,
		userID:         userID,
		conversationID: conversationID,
		input:          ti,
		theme:          defaultTheme,
		state:          conn.State(),
	}
}

// Init returns the initial command.
func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages and returns the updated model.
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.SetValue("")
			return m, m.sendMessage(text)
		}

	case logChangedMsg, feedChangedMsg:
		// State lives in the reconciler/aggregator; re-render only.
		return m, nil

	case connStateMsg:
		m.state = msg.state
		return m, nil

	case sendResultMsg:
		if msg.err == nil {
			_ = m.rec.Reconcile(msg.tempID, msg.ack)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// sendMessage inserts the optimistic entry and emits the send. The ack
// (or its timeout) comes back as a sendResultMsg.
func (m chatModel) sendMessage(text string) tea.Cmd {
	msg := chat.Message{
		ConversationID: m.conversationID,
		From:           m.userID,
		Text:           text,
	}
	tempID, err := m.rec.AppendOptimistic(msg)
	if err != nil {
		return func() tea.Msg { return sendResultMsg{err: err} }
	}

	conn := m.conn
	return func() tea.Msg {
		ack, err := conn.EmitWithAck(context.Background(), realtime.EmitSendMessage, struct {
			chat.Message
			TempID string `json:"tempId"`
		}{msg, tempID})
		return sendResultMsg{tempID: tempID, ack: ack, err: err}
	}
}

// View renders the chat display.
func (m chatModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m chatModel) renderContent() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	status := fmt.Sprintf("%s  [%s]", m.conversationID, m.state)
	if unread := m.agg.Unread(); unread > 0 {
		status += fmt.Sprintf("  %d unread elsewhere", unread)
	}
	b.WriteString(m.theme.statusStyle().Render(status))
	b.WriteString("\n\n")

	for _, msg := range m.rec.Messages() {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	return b.String()
}

func (m chatModel) renderMessage(msg chat.Message) string {
	line := fmt.Sprintf("%s: %s", msg.From, msg.Text)
	if msg.Attachment != nil {
		line = fmt.Sprintf("%s: [%s]", msg.From, msg.Attachment.Kind)
	}

	switch msg.State {
	case chat.StatePending:
		return m.theme.pendingStyle().Render(line + " …")
	case chat.StateFailed:
		note := " ✗ failed"
		if msg.TimedOut {
			note = " ✗ no reply"
		}
		return m.theme.failedStyle().Render(line + note)
	}

	if msg.From == m.userID {
		return m.theme.mineStyle().Render(line)
	}
	return m.theme.theirsStyle().Render(line)
}
