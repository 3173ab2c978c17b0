package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/brain-engine/internal/retrieval"
	"github.com/pdiddy/brain-engine/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge store",
	Long: `Search runs the hybrid retrieval pipeline: vector similarity over chunk
embeddings, keyword search over chunk text, and knowledge-graph expansion
of entities named in the query, fused and reranked.

When the rerank or embedding capability is unavailable the remaining
stages still answer and the results are flagged as degraded.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Int("k", 0, "maximum number of results (default 10)")
	searchCmd.Flags().String("type", "", "filter by modality: text, document, image, audio")
	searchCmd.Flags().String("source", "", "filter by source type: entry or file")
	searchCmd.Flags().String("from", "", "only chunks created on or after this date (YYYY-MM-DD)")
	searchCmd.Flags().String("to", "", "only chunks created before this date (YYYY-MM-DD)")
	searchCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	q, err := queryFromFlags(cmd, args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openBrain(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	results, err := a.brain.SearchSemantic(ctx, q, conversationID(cmd))
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatSearchOutput(results, jsonOutput)
}

func queryFromFlags(cmd *cobra.Command, args []string) (retrieval.Query, error) {
	q := retrieval.Query{Text: strings.Join(args, " ")}
	q.Limit, _ = cmd.Flags().GetInt("k")

	if modality, _ := cmd.Flags().GetString("type"); modality != "" {
		m, err := parseModality(modality)
		if err != nil {
			return retrieval.Query{}, err
		}
		q.Filters.Modality = m
	}
	q.Filters.SourceType, _ = cmd.Flags().GetString("source")

	var err error
	if q.Filters.Start, err = parseDateFlag(cmd, "from"); err != nil {
		return retrieval.Query{}, err
	}
	if q.Filters.End, err = parseDateFlag(cmd, "to"); err != nil {
		return retrieval.Query{}, err
	}
	return q, nil
}

func parseDateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s date %q (want YYYY-MM-DD)", name, s)
	}
	return t, nil
}

func formatSearchOutput(results retrieval.Results, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if results.Degraded {
		fmt.Fprintln(os.Stderr, "warning: degraded results (a retrieval capability was unavailable)")
	}
	if len(results.Hits) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-7s  %-36s  %s\n", "Rank", "Score", "Ref", "Text")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for i, hit := range results.Hits {
		text := strings.ReplaceAll(hit.Chunk.Text, "\n", " ")
		if len(text) > 50 {
			text = text[:47] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-7.4f  %-36s  %s\n", i+1, hit.Score, refString(hit.Ref), text)
	}
	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results.Hits))
	return nil
}

func refString(r types.Ref) string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}
