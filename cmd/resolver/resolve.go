package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	resolveVars    []string
	resolveFormat  string
	resolveSave    bool
	resolveCompany string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <bundle.json>",
	Short: "Run the full resolution pipeline for one statement bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		bundle, err := readBundle(args[0])
		if err != nil {
			return err
		}
		e, st, err := newEngine(ctx, cfg, resolveSave)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close()
		}

		r, err := e.Run(ctx, companyName(args[0], resolveCompany), bundle, resolveVars)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}
		return writeReport(cmd.OutOrStdout(), r, resolveFormat)
	},
}

func init() {
	resolveCmd.Flags().StringSliceVar(&resolveVars, "vars", nil, "required variables (default: every variable in the rule table)")
	resolveCmd.Flags().StringVar(&resolveFormat, "format", formatJSON, "output format: json, markdown or html")
	resolveCmd.Flags().BoolVar(&resolveSave, "save", false, "persist the report to the configured store")
	resolveCmd.Flags().StringVar(&resolveCompany, "company", "", "company name (default: bundle file name)")
	rootCmd.AddCommand(resolveCmd)
}
