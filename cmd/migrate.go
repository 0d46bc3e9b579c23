package cmd

import (
	"example.com/socialfeed/internal/store"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations for STORE_DRIVER and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.Migrate(appCfg); err != nil {
			return err
		}
		logg.Info("cmd", "Migrations applied for "+appCfg.StoreDriver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
