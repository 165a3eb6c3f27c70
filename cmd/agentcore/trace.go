package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orbitx-labs/agentcore/pkg/models"
)

// buildTraceCmd creates the "trace" command group for inspecting recorded
// tool-chain audit logs (pkg/models.Chain).
func buildTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded ReAct tool-chain traces",
	}
	cmd.AddCommand(buildTraceInspectCmd())
	return cmd
}

func buildTraceInspectCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print a tool-chain trace file as a readable summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read trace file: %w", err)
			}

			var chain models.Chain
			if err := json.Unmarshal(raw, &chain); err != nil {
				return fmt.Errorf("parse trace file as a tool chain: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d tool call(s)\n", len(chain.Entries))
			for i, entry := range chain.Entries {
				status := "ok"
				if entry.Result != nil && entry.Result.IsError {
					status = "error"
				}
				fmt.Fprintf(out, "%d. %s (%s) [%s]\n", i+1, entry.ToolName, entry.ToolCallID, status)
				if verbose && entry.Result != nil {
					fmt.Fprintf(out, "   -> %s\n", entry.Result.JoinedText())
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print each tool call's result text")
	return cmd
}
