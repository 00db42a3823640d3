package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bizlink/bizchat-go/internal/chat"
	"github.com/bizlink/bizchat-go/internal/realtime"
)

var startBusiness bool

var startCmd = &cobra.Command{
	Use:   "start <recipientId>",
	Short: "Start a conversation",
	Long: `Start a conversation with a user or, with --business, another
business. Prints the conversation id to use with 'bizchat chat' and
'bizchat send'.`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&startBusiness, "business", false, "business-to-business conversation")
}

// acker is the slice of the connection the wire helpers need.
type acker interface {
	EmitWithAck(ctx context.Context, event string, v any) (realtime.AckResult, error)
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	conn, _, err := acquireSession(ctx)
	if err != nil {
		return err
	}

	cs, err := startConversation(ctx, conn, args[0], startBusiness)
	if err != nil {
		return err
	}
	fmt.Println(cs.ConversationID)
	return nil
}

// startConversation opens (or returns) the conversation with another
// user or business and yields its summary.
func startConversation(ctx context.Context, conn acker, otherUserID string, business bool) (chat.ConversationSummary, error) {
	ack, err := conn.EmitWithAck(ctx, realtime.EmitStartConversation, struct {
		OtherUserID            string `json:"otherUserId"`
		IsBusinessConversation bool   `json:"isBusinessConversation,omitempty"`
	}{otherUserID, business})
	if err != nil {
		return chat.ConversationSummary{}, fmt.Errorf("start conversation: %w", err)
	}
	if !ack.OK {
		return chat.ConversationSummary{}, fmt.Errorf("start conversation: %s", ack.Err)
	}

	var cs chat.ConversationSummary
	if err := ack.Decode(&cs); err != nil {
		return chat.ConversationSummary{}, fmt.Errorf("decode conversation: %w", err)
	}
	return cs, nil
}
