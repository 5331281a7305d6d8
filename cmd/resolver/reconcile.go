package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"lineitem_engine/pkg/core/anchor"
	"lineitem_engine/pkg/core/reconcile"
)

var reconcileFormat string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <bundle.json>",
	Short: "Check that the three statements agree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := readBundle(args[0])
		if err != nil {
			return err
		}
		table, err := loadTable(cfg)
		if err != nil {
			return eris.Wrap(err, "load rules")
		}
		res := anchor.NewResolver(table).Resolve(bundle)
		rep := reconcile.NewEngine(cfg.Reconcile).Run(res.Anchors)

		out := cmd.OutOrStdout()
		switch reconcileFormat {
		case formatJSON:
			return writeJSON(out, rep)
		case formatText:
			fmt.Fprintf(out, "overall: %s\n", rep.OverallStatus)
			for _, c := range rep.Checks() {
				fmt.Fprintf(out, "%s: %s (%d periods)\n  %s\n", c.Name, c.Status, len(c.Periods), c.Resolution)
			}
			return nil
		}
		return eris.Errorf("unknown format %q (want text or json)", reconcileFormat)
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileFormat, "format", formatText, "output format: text or json")
	rootCmd.AddCommand(reconcileCmd)
}
