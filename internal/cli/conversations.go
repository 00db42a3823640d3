package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bizlink/bizchat-go/internal/chat"
	"github.com/bizlink/bizchat-go/internal/realtime"
)

var conversationsLive bool

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List your conversations",
	Long: `List conversations with last-message preview and unread badge.

By default the list comes from the REST API. With --live it is fetched
over the realtime socket instead, exercising the getConversations call.`,
	Args: cobra.NoArgs,
	RunE: runConversations,
}

func init() {
	conversationsCmd.Flags().BoolVar(&conversationsLive, "live", false, "fetch over the realtime socket")
}

func runConversations(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var list []chat.ConversationSummary
	if conversationsLive {
		conn, identity, err := acquireSession(ctx)
		if err != nil {
			return err
		}
		ack, err := conn.EmitWithAck(ctx, realtime.EmitGetConversations, map[string]string{"userId": identity.UserID})
		if err != nil {
			return fmt.Errorf("get conversations: %w", err)
		}
		if !ack.OK {
			return fmt.Errorf("get conversations: %s", ack.Err)
		}
		if err := ack.Decode(&list); err != nil {
			return fmt.Errorf("decode conversations: %w", err)
		}
	} else {
		var err error
		list, err = apiClient.Conversations(ctx)
		if err != nil {
			return err
		}
	}

	if len(list) == 0 {
		fmt.Println("No conversations.")
		return nil
	}

	for _, cs := range list {
		badge := ""
		if cs.Unread > 0 {
			badge = fmt.Sprintf(" (%d unread)", cs.Unread)
		}
		title := cs.Title
		if title == "" {
			title = cs.ConversationID
		}
		fmt.Printf("%s%s\n", title, badge)
		if cs.LastMessage != "" {
			fmt.Printf("  %s: %s\n", cs.LastFrom, cs.LastMessage)
		}
	}
	return nil
}
