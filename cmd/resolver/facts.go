package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"lineitem_engine/pkg/core/ingest"
)

var (
	factsCIK    string
	factsTicker string
)

var factsCmd = &cobra.Command{
	Use:   "facts [companyfacts.json]",
	Short: "Convert SEC EDGAR company facts into a statement bundle",
	Long:  "Reads a companyfacts document from a file, or fetches it from EDGAR with --cik or --ticker, and writes the annual USD facts the rule table knows as a bundle on stdout.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sources := 0
		for _, set := range []bool{len(args) == 1, factsCIK != "", factsTicker != ""} {
			if set {
				sources++
			}
		}
		if sources != 1 {
			return eris.New("give exactly one of a file, --cik or --ticker")
		}

		table, err := loadTable(cfg)
		if err != nil {
			return eris.Wrap(err, "load rules")
		}

		var cf *ingest.CompanyFacts
		if len(args) == 1 {
			cf, err = readCompanyFacts(args[0])
		} else {
			client := ingest.NewEDGARClient(
				ingest.WithBaseURL(cfg.EDGAR.BaseURL, cfg.EDGAR.TickersURL),
				ingest.WithUserAgent(cfg.EDGAR.UserAgent),
			)
			cik := factsCIK
			if factsTicker != "" {
				if cik, err = client.LookupCIK(ctx, factsTicker); err != nil {
					return err
				}
			}
			cf, err = client.FetchCompanyFacts(ctx, cik)
		}
		if err != nil {
			return err
		}

		bundle, err := cf.Bundle(table, ingest.ConvertOptions{})
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), bundle)
	},
}

func init() {
	factsCmd.Flags().StringVar(&factsCIK, "cik", "", "fetch company facts for this CIK")
	factsCmd.Flags().StringVar(&factsTicker, "ticker", "", "fetch company facts for this ticker symbol")
	rootCmd.AddCommand(factsCmd)
}

func readCompanyFacts(path string) (*ingest.CompanyFacts, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return ingest.ParseCompanyFacts(f)
}
