package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/brain-engine/internal/capability"
	"github.com/pdiddy/brain-engine/internal/retrieval"
	"github.com/pdiddy/brain-engine/internal/session"
)

var askCmd = &cobra.Command{
	Use:   "ask [text]",
	Short: "Run one conversational turn against the store",
	Long: `Ask runs a full agent turn: the text is classified as a write, a search,
or both, and the matching store operations are invoked through the
conversation's session. Use --conversation to keep turns on the same
session; the same id threads through the audit ledger.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().Int("k", 0, "maximum number of search results (default 10)")

	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	conv := conversationID(cmd)
	k, _ := cmd.Flags().GetInt("k")

	ctx := context.Background()
	a, err := openBrain(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	sess := a.sessions.Get(conv)
	out, err := session.RunTurn(ctx, sess, text, func(ctx context.Context, intent capability.Intent) (string, error) {
		return a.turn(ctx, intent, text, conv, k)
	})
	if out != "" {
		fmt.Print(out)
	}
	return err
}

// turn performs the store operations a classified intent asks for and
// formats the response.
func (a *app) turn(ctx context.Context, intent capability.Intent, text, conv string, k int) (string, error) {
	var sb strings.Builder

	if intent == capability.IntentWrite || intent == capability.IntentBoth {
		res, err := a.brain.WriteEntry(ctx, text, conv)
		if err != nil {
			return sb.String(), err
		}
		if res.WasDuplicate {
			fmt.Fprintf(&sb, "already stored as %s\n", res.Item.ID)
		} else {
			fmt.Fprintf(&sb, "stored %s (%d chunks)\n", res.Item.ID, res.ChunkCount)
		}
	}

	if intent == capability.IntentSearch || intent == capability.IntentBoth {
		results, err := a.brain.SearchSemantic(ctx, retrieval.Query{Text: text, Limit: k}, conv)
		if err != nil {
			return sb.String(), err
		}
		if results.Degraded {
			fmt.Fprintln(&sb, "warning: degraded results (a retrieval capability was unavailable)")
		}
		if len(results.Hits) == 0 {
			fmt.Fprintln(&sb, "No results found.")
		}
		for i, hit := range results.Hits {
			line := strings.ReplaceAll(hit.Chunk.Text, "\n", " ")
			if len(line) > 70 {
				line = line[:67] + "..."
			}
			fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, refString(hit.Ref), line)
		}
	}

	return sb.String(), nil
}
