package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/flemzord/substackulous/internal/history"
	"github.com/flemzord/substackulous/pkg/message"
	"github.com/spf13/cobra"
)

func boundCmd() *cobra.Command {
	var (
		maxTokens int
		stats     bool
	)
	cmd := &cobra.Command{
		Use:   "bound",
		Short: "Bound a JSON transcript read from stdin to a token budget",
		Long: `Reads a JSON array of messages ({"role", "content", "timestamp"}) on
stdin and prints the most recent messages whose combined whitespace token
count fits the budget, oldest first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			var transcript message.Transcript
			if err := json.Unmarshal(raw, &transcript); err != nil {
				return fmt.Errorf("decoding transcript: %w", err)
			}

			// WithBudget keeps a non-positive budget as given: it bounds to
			// an empty transcript instead of selecting the default.
			res := history.NewBounder(history.DefaultMaxTokens).WithBudget(maxTokens).BoundWithStats(transcript)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res.Transcript); err != nil {
				return err
			}
			if stats {
				fmt.Fprintf(cmd.ErrOrStderr(), "kept %d of %d messages, %d tokens, budget %d\n",
					len(res.Transcript), len(transcript), res.Tokens, maxTokens)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&maxTokens, "max-tokens", "n", history.DefaultMaxTokens, "Token budget")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print kept/dropped counts to stderr")
	return cmd
}
