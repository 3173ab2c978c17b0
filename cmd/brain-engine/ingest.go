package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/brain-engine/pkg/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest files into the knowledge store",
	Long: `Ingest reads one or more files, stores their raw bytes content-addressed,
and runs the modal chunking pipeline: documents are OCR'd page by page,
images described, audio transcribed, and text split on structure. The
modality is detected from the file extension unless --modality is set.

Files whose content is already stored are reported as duplicates and
skipped. A failure on one file does not abort the rest.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("modality", "", "force a modality: text, document, image, audio")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	forced, _ := cmd.Flags().GetString("modality")
	if forced != "" {
		if _, err := parseModality(forced); err != nil {
			return err
		}
	}

	ctx := context.Background()
	a, err := openBrain(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	failed := 0
	for _, path := range args {
		modality := types.Modality(forced)
		if forced == "" {
			modality = detectModality(path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}

		res, err := a.brain.IngestContent(ctx, data, modality, path, conversationID(cmd))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}
		if res.WasDuplicate {
			fmt.Printf("%s: duplicate of %s\n", path, res.Item.ID)
			continue
		}
		fmt.Printf("%s: stored %s (%s, %d chunks)\n", path, res.Item.ID, modality, res.ChunkCount)
		for _, n := range res.Item.Notes {
			fmt.Printf("%s: note: %s\n", path, n)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d file(s) failed ingestion", failed)
	}
	return nil
}

func parseModality(s string) (types.Modality, error) {
	switch m := types.Modality(strings.ToLower(s)); m {
	case types.ModalityText, types.ModalityDocument, types.ModalityImage, types.ModalityAudio:
		return m, nil
	default:
		return "", fmt.Errorf("unknown modality %q (want text, document, image, or audio)", s)
	}
}

// detectModality maps a file extension to a modality. Unknown extensions
// are treated as text.
func detectModality(path string) types.Modality {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".epub", ".docx":
		return types.ModalityDocument
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp":
		return types.ModalityImage
	case ".mp3", ".wav", ".m4a", ".ogg", ".flac", ".opus":
		return types.ModalityAudio
	default:
		return types.ModalityText
	}
}
