package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [entity]",
	Short: "Explore the knowledge graph around an entity",
	Long: `Graph resolves an entity by canonical name or alias and walks its
relation neighborhood to the requested depth. Relations carry a
confidence score and provenance back to the chunks they were derived
from.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGraph,
}

func init() {
	graphCmd.Flags().String("predicate", "", "only follow relations with this predicate")
	graphCmd.Flags().Int("depth", 0, "traversal depth (default 2, capped at 4)")
	graphCmd.Flags().Bool("json", false, "output the neighborhood as JSON")

	rootCmd.AddCommand(graphCmd)
}

func runGraph(cmd *cobra.Command, args []string) error {
	name := strings.Join(args, " ")
	predicate, _ := cmd.Flags().GetString("predicate")
	depth, _ := cmd.Flags().GetInt("depth")

	ctx := context.Background()
	a, err := openBrain(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.brain.SearchGraph(ctx, name, predicate, depth, conversationID(cmd))
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	names := make(map[string]string, len(res.Entities))
	for _, e := range res.Entities {
		names[e.ID] = e.CanonicalName
	}

	fmt.Printf("%s (%s, %d mentions)\n", res.Root.CanonicalName, res.Root.EntityType, res.Root.MentionCount)
	if len(res.Root.Aliases) > 0 {
		fmt.Printf("aliases: %s\n", strings.Join(res.Root.Aliases, ", "))
	}

	if len(res.Relations) == 0 {
		fmt.Println("\nNo relations found.")
		return nil
	}
	fmt.Println()
	for _, r := range res.Relations {
		fmt.Printf("  %s --%s--> %s (%.2f)\n",
			names[r.SubjectID], r.Predicate, names[r.ObjectID], r.Confidence)
	}
	fmt.Printf("\n%d entities, %d relations\n", len(res.Entities), len(res.Relations))
	return nil
}
