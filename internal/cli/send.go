package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bizlink/bizchat-go/internal/chat"
	"github.com/bizlink/bizchat-go/internal/realtime"
	"github.com/bizlink/bizchat-go/internal/session"
)

var (
	sendTo       string
	sendBusiness bool
)

var sendCmd = &cobra.Command{
	Use:   "send <conversationId> <text>",
	Short: "Send a single message",
	Long: `Send one message into a conversation and wait for the server's
acknowledgement. The message goes through the same optimistic-insert
and reconcile path the interactive chat uses.

Examples:
  bizchat send C1 "On my way"
  bizchat send B7 "Restock confirmed" --business`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "recipient user or business id")
	sendCmd.Flags().BoolVar(&sendBusiness, "business", false, "business-to-business conversation")
}

func runSend(cmd *cobra.Command, args []string) error {
	conversationID, text := args[0], args[1]
	ctx := context.Background()

	conn, identity, err := acquireSession(ctx)
	if err != nil {
		return err
	}

	kind := chat.KindUserBusiness
	if sendBusiness {
		kind = chat.KindBusinessBusiness
	}

	rooms := session.NewRooms(conn, logger)
	if err := rooms.SetActive(ctx, conversationID, kind); err != nil {
		return err
	}

	rec := chat.NewReconciler(conversationID, cfg.AckTimeout, logger)
	msg := chat.Message{
		ConversationID: conversationID,
		From:           identity.UserID,
		To:             sendTo,
		Text:           text,
	}
	tempID, err := rec.AppendOptimistic(msg)
	if err != nil {
		return err
	}

	ack, err := conn.EmitWithAck(ctx, realtime.EmitSendMessage, struct {
		chat.Message
		TempID string `json:"tempId"`
	}{msg, tempID})
	if err != nil {
		return err
	}
	if err := rec.Reconcile(tempID, ack); err != nil {
		return err
	}

	final := rec.Messages()[0]
	switch final.State {
	case chat.StateSent:
		fmt.Printf("sent (id %s)\n", final.ID)
		return nil
	default:
		if final.TimedOut {
			return fmt.Errorf("send failed: no acknowledgement within %s", cfg.AckTimeout)
		}
		return fmt.Errorf("send failed: %s", ack.Err)
	}
}
