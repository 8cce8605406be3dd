package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the store's collections",
	Long: `Create or update the store's collections.

SQL drivers are auto-migrated. For DefraDB the collection schemas are
applied; schemas that already exist are skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mustServices(cmd)
		if err != nil {
			return err
		}
		if err := s.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Store %s is up to date\n", s.Config.Store.Driver)
		return nil
	},
}

func init() {
	dbCmd.AddCommand(dbMigrateCmd)
	rootCmd.AddCommand(dbCmd)
}
