package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/brain-engine/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the live knowledge base to YAML and JSON",
	Long: `Export writes every live chunk with its item metadata to
<data-dir>/index/export.yaml and export.json. Tombstoned entries are
excluded; the audit ledger is not part of the export.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg := engineConfig()
	logger := newLogger(cmd)

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.ExportYAML(ctx); err != nil {
		return err
	}
	if err := st.ExportJSON(ctx); err != nil {
		return err
	}

	fmt.Printf("exported to %s\n", filepath.Join(cfg.Store.DataDir, "index"))
	return nil
}
