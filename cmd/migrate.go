package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateReseed bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create store tables and load reference data",
	Long:  "Migrates the run store and the reference store, seeding vendors and past expenditures when empty. --reseed replaces existing reference rows.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		refs, closeRefs, err := initReference(ctx, st, migrateReseed)
		if err != nil {
			return err
		}
		defer closeRefs()

		counts, err := refs.Counts(ctx)
		if err != nil {
			return eris.Wrap(err, "count reference data")
		}
		zap.L().Info("migration complete",
			zap.String("store_driver", cfg.Store.Driver),
			zap.String("reference_driver", cfg.ReferenceDriver()),
			zap.Int("vendors", counts.Vendors),
			zap.Int("expenditures", counts.Expenditures),
		)
		fmt.Printf("store %s migrated; reference data: %d vendors, %d expenditures\n",
			cfg.Store.Driver, counts.Vendors, counts.Expenditures)
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateReseed, "reseed", false, "replace existing reference data with the seed")
	rootCmd.AddCommand(migrateCmd)
}
