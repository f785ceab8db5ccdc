package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/CertGoat/internal/monitor"
)

var diffJSON bool

// diffCmd creates the "diff" subcommand comparing two JSON outputs.
func diffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <old.json> <new.json>",
		Short: "Show per-ISIN changes between two runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			old, err := monitor.LoadOutput(args[0])
			if err != nil {
				return err
			}
			cur, err := monitor.LoadOutput(args[1])
			if err != nil {
				return err
			}

			changes, err := monitor.Diff(old, cur)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if diffJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(changes)
			}
			monitor.WriteTable(w, changes)
			return nil
		},
	}

	cmd.Flags().BoolVar(&diffJSON, "json", false, "print changes as JSON")
	return cmd
}
