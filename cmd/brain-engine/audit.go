package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit ledger",
	Long: `Audit lists recorded tool invocations, newest first. Every store
operation leaves exactly one record: the operation name, its arguments,
a result summary, and the conversation that issued it. Records survive
entry deletion.`,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().String("from", "", "only records on or after this date (YYYY-MM-DD)")
	auditCmd.Flags().String("to", "", "only records before this date (YYYY-MM-DD)")
	auditCmd.Flags().Bool("json", false, "output records as JSON")

	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	start, err := parseDateFlag(cmd, "from")
	if err != nil {
		return err
	}
	end, err := parseDateFlag(cmd, "to")
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openBrain(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	records, err := a.brain.Audit().Query(ctx, conversationID(cmd), start, end)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("No audit records found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-20s  %-16s  %-30s  %s\n", "Time", "Operation", "Result", "Conversation")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 90))
	for _, r := range records {
		summary := r.ResultSummary
		if len(summary) > 30 {
			summary = summary[:27] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-20s  %-16s  %-30s  %s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.Operation, summary, r.ConversationID)
	}
	fmt.Fprintf(os.Stdout, "\n%d records\n", len(records))
	return nil
}
