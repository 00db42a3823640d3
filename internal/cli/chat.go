package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bizlink/bizchat-go/internal/chat"
	"github.com/bizlink/bizchat-go/internal/notify"
	"github.com/bizlink/bizchat-go/internal/realtime"
	"github.com/bizlink/bizchat-go/internal/session"
)

var chatBusiness bool

var chatCmd = &cobra.Command{
	Use:   "chat <conversationId>",
	Short: "Open an interactive chat",
	Long: `Open an interactive terminal chat on a conversation.

Messages you type are inserted optimistically and reconciled against
the server's acknowledgement; incoming messages for other conversations
update the unread badge shown in the status line.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatBusiness, "business", false, "business-to-business conversation")
}

func runChat(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("chat needs an interactive terminal; use 'bizchat send' for scripting")
	}

	conversationID := args[0]
	ctx := context.Background()

	conn, identity, err := acquireSession(ctx)
	if err != nil {
		return err
	}

	kind := chat.KindUserBusiness
	if chatBusiness {
		kind = chat.KindBusinessBusiness
	}

	inbox := chat.NewInbox(cfg.AckTimeout, logger)
	inbox.Bind(conn)
	rec := inbox.SetActive(conversationID)

	agg := notify.NewAggregator(logger)
	agg.Bind(conn)

	rooms := session.NewRooms(conn, logger)
	if err := rooms.SetActive(ctx, conversationID, kind); err != nil {
		return err
	}

	// Seed the log from history before live events flow in; the
	// reconciler's identity dedup absorbs any overlap.
	history, err := apiClient.History(ctx, conversationID)
	if err != nil {
		logger.Warn("history fetch failed, trying socket", "error", err)
		ack, ackErr := conn.EmitWithAck(ctx, realtime.EmitGetHistory,
			map[string]string{"conversationId": conversationID})
		if ackErr == nil && ack.OK {
			if decErr := ack.Decode(&history); decErr != nil {
				logger.Warn("undecodable history ack, starting empty", "error", decErr)
			}
		}
	}
	for _, m := range history {
		if _, err := rec.IngestRemote(m); err != nil {
			logger.Debug("skipping history entry", "error", err)
		}
	}

	// Opening the conversation reads it.
	markMessagesRead(ctx, conn, conversationID, logger)

	model := newChatModel(conn, rec, agg, identity.UserID, conversationID)
	p := tea.NewProgram(model)

	inbox.OnLogChange(func() { p.Send(logChangedMsg{}) })
	agg.OnChange(func() { p.Send(feedChangedMsg{}) })
	conn.OnConnect(func() { p.Send(connStateMsg{state: realtime.StateConnected}) })
	conn.OnDisconnect(func(reason string) { p.Send(connStateMsg{state: realtime.StateDisconnected, reason: reason}) })

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	return nil
}

// markMessagesRead tells the server the conversation was read. A
// rejection only logs; the unread badge self-corrects on the next
// fetch.
func markMessagesRead(ctx context.Context, conn acker, conversationID string, log *slog.Logger) {
	ack, err := conn.EmitWithAck(ctx, realtime.EmitMarkMessagesRead,
		map[string]string{"conversationId": conversationID})
	if err != nil {
		log.Debug("mark read emit failed", "error", err)
		return
	}
	if !ack.OK {
		log.Warn("mark read rejected", "conversation", conversationID, "error", ack.Err)
	}
}
