package main

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	triPeriod string
	triPrior  string
	triFormat string
)

var triangulateCmd = &cobra.Command{
	Use:   "triangulate <bundle.json>",
	Short: "Estimate total debt with every triangulation method",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		bundle, err := readBundle(args[0])
		if err != nil {
			return err
		}
		e, _, err := newEngine(ctx, cfg, false)
		if err != nil {
			return err
		}
		tri, err := e.Triangulate(ctx, bundle, triPeriod, triPrior)
		if err != nil {
			return eris.Wrap(err, "triangulate")
		}

		switch triFormat {
		case formatJSON:
			return writeJSON(cmd.OutOrStdout(), tri)
		case formatText:
			_, err := io.WriteString(cmd.OutOrStdout(), tri.HumanReadable()+"\n")
			return err
		}
		return eris.Errorf("unknown format %q (want text or json)", triFormat)
	},
}

func init() {
	triangulateCmd.Flags().StringVar(&triPeriod, "period", "", "balance sheet period to estimate (default: latest)")
	triangulateCmd.Flags().StringVar(&triPrior, "prior", "", "prior period for the roll-forward method")
	triangulateCmd.Flags().StringVar(&triFormat, "format", formatText, "output format: text or json")
	rootCmd.AddCommand(triangulateCmd)
}
