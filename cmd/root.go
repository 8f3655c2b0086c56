package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spendshield/internal/config"
)

const (
	serviceName = "SpendShield"
	version     = "1.0.0"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:          "spendshield",
	Short:        "Procurement fraud screening for public expenditure",
	Long:         "Extracts invoice data with a vision model, verifies the vendor against the registry, flags anomalies and scores fraud risk.",
	SilenceUsage: true,
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
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
