package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orbitx-labs/agentcore/internal/planner"
)

// buildValidateCmd creates the "validate" command: parse a planning-markup
// document with no model call involved, reporting the parsed fields, or an
// error when none of <name>, <thought>, <task>, <nodes> or <subtasks> is found.
func buildValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <markup-file>",
		Short: "Parse a planning-markup document and report its structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read markup file: %w", err)
			}

			name, thought, description, nodes, subtasks := planner.ParseMarkup(string(raw))

			out := cmd.OutOrStdout()
			if name == "" && thought == "" && description == "" && len(nodes) == 0 && len(subtasks) == 0 {
				return fmt.Errorf("no recognizable <task>/<thought>/<nodes> markup found in %s", args[0])
			}
			fmt.Fprintf(out, "name: %s\n", name)
			fmt.Fprintf(out, "thought: %s\n", thought)
			fmt.Fprintf(out, "description: %s\n", description)
			fmt.Fprintf(out, "nodes: %d\n", len(nodes))
			for i, n := range nodes {
				fmt.Fprintf(out, "  %d. [%s] %s\n", i+1, n.Kind, n.Text)
			}
			fmt.Fprintf(out, "subtasks: %d\n", len(subtasks))
			for i, s := range subtasks {
				fmt.Fprintf(out, "  %d. %s\n", i+1, s)
			}
			return nil
		},
	}
	return cmd
}
