package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var advisorCmd = &cobra.Command{
	Use:   "advisor <question>",
	Short: "Ask the business advisor",
	Long: `Ask the AI business advisor a question.

A new question aborts any advisor query still in flight from this
client; the abort is best-effort and the superseded response is
discarded.`,
	Args: cobra.ExactArgs(1),
	RunE: runAdvisor,
}

func runAdvisor(cmd *cobra.Command, args []string) error {
	answer, err := apiClient.AskAdvisor(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("advisor: %w", err)
	}
	fmt.Println(answer.Answer)
	return nil
}
