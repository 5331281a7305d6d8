package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lineitem_engine/pkg/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "resolver",
	Short: "Resolve, validate and reconcile financial statement line items",
	Long:  "Maps XBRL-tagged line items to canonical roles, derives and validates the variables a valuation model needs, triangulates total debt and reconciles the three statements.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
