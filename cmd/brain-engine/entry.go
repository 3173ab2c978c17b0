package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/brain-engine/internal/brain"
)

var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Write, update, delete, and read entries",
	Long: `Entry manages typed notes in the knowledge store. Written text is
normalized and content-addressed: writing identical text twice resolves to
the existing entry. Updates tombstone the old entry and ingest the new
text; deletes tombstone without erasing audit history.`,
}

// --- write subcommand ---

var entryWriteCmd = &cobra.Command{
	Use:   "write [text]",
	Short: "Store a text entry",
	Long: `Write stores a text note. The text is taken from the arguments, or from
--file, or from stdin when neither is given. Duplicate content is reported
rather than stored twice.`,
	RunE: runEntryWrite,
}

func runEntryWrite(cmd *cobra.Command, args []string) error {
	text, err := entryText(cmd, args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openBrain(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.brain.WriteEntry(ctx, text, conversationID(cmd))
	if err != nil {
		return err
	}
	if res.WasDuplicate {
		fmt.Printf("duplicate of %s\n", res.Item.ID)
		return nil
	}
	printIngest(res)
	return nil
}

// --- update subcommand ---

var entryUpdateCmd = &cobra.Command{
	Use:   "update [id] [text]",
	Short: "Replace an entry's content",
	Long: `Update tombstones the entry and ingests the replacement text as its
successor. The old entry's audit history is preserved.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEntryUpdate,
}

func runEntryUpdate(cmd *cobra.Command, args []string) error {
	id := args[0]
	text, err := entryText(cmd, args[1:])
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openBrain(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.brain.UpdateEntry(ctx, id, text, conversationID(cmd))
	if err != nil {
		return err
	}
	printIngest(res)
	return nil
}

// --- delete subcommand ---

var entryDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Tombstone an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openBrain(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.brain.DeleteEntry(ctx, args[0], conversationID(cmd)); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

// --- read subcommand ---

var entryReadCmd = &cobra.Command{
	Use:   "read [id]",
	Short: "Read an entry's full reconstructed text",
	Long: `Read returns the entry's chunks in order and their concatenated text.
Use --json for the structured form including chunk summaries and notes.`,
	Args: cobra.ExactArgs(1),
	RunE: runEntryRead,
}

func runEntryRead(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openBrain(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	doc, err := a.brain.ReadDocument(ctx, args[0], conversationID(cmd))
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	fmt.Println(doc.Text)
	return nil
}

// --- shared helpers ---

// entryText resolves the note body from args, --file, or stdin.
func entryText(cmd *cobra.Command, args []string) (string, error) {
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil || len(data) == 0 {
		return "", fmt.Errorf("no text given: pass text as arguments, --file, or stdin")
	}
	return string(data), nil
}

func printIngest(res brain.IngestResult) {
	fmt.Printf("stored %s (%d chunks)\n", res.Item.ID, res.ChunkCount)
	if res.Degraded {
		fmt.Println("note: some enrichment stages were skipped (capability unavailable)")
	}
	for _, n := range res.Item.Notes {
		fmt.Printf("note: %s\n", n)
	}
}

func init() {
	entryWriteCmd.Flags().String("file", "", "read entry text from a file")
	entryUpdateCmd.Flags().String("file", "", "read replacement text from a file")
	entryReadCmd.Flags().Bool("json", false, "output the document as JSON")

	entryCmd.AddCommand(entryWriteCmd)
	entryCmd.AddCommand(entryUpdateCmd)
	entryCmd.AddCommand(entryDeleteCmd)
	entryCmd.AddCommand(entryReadCmd)
	rootCmd.AddCommand(entryCmd)
}
