package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bizlink/bizchat-go/internal/notify"
)

var (
	notificationsMarkRead string
	notificationsClear    bool
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Show the notification feed",
	Long: `Show the merged notification feed with the aggregate unread count.

Message notifications superseded by an AI recommendation on the same
thread are hidden, matching what the web app surfaces.

Examples:
  bizchat notifications
  bizchat notifications --read n42
  bizchat notifications --clear`,
	Args: cobra.NoArgs,
	RunE: runNotifications,
}

func init() {
	notificationsCmd.Flags().StringVar(&notificationsMarkRead, "read", "", "mark a notification read by id")
	notificationsCmd.Flags().BoolVar(&notificationsClear, "clear", false, "clear read notifications")
}

func runNotifications(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	agg := notify.NewAggregator(logger)

	fetched, err := apiClient.Notifications(ctx)
	if err != nil {
		return err
	}
	agg.SetAll(fetched)

	if notificationsMarkRead != "" {
		// Optimistic local decrement first; the server call confirms.
		agg.MarkRead(notificationsMarkRead)
		if err := apiClient.MarkNotificationRead(ctx, notificationsMarkRead); err != nil {
			return err
		}
	}

	if notificationsClear {
		if err := apiClient.ClearReadNotifications(ctx); err != nil {
			return err
		}
		agg.ClearAll()
	}

	feed := agg.Visible()
	if len(feed) == 0 {
		fmt.Println("No notifications.")
		return nil
	}

	for _, n := range feed {
		marker := " "
		if !n.Read {
			marker = "*"
		}
		fmt.Printf("%s [%s] %s  %s\n", marker, n.Type, n.Text, n.Timestamp.Format("2006-01-02 15:04"))
	}
	fmt.Printf("\n%d unread\n", agg.Unread())
	return nil
}
