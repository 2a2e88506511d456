package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/clausify/clausify/internal/config"
	"github.com/clausify/clausify/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long:  `Migrate creates the tables and indexes used by Clausify. It is safe to run repeatedly.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		ctx, cancel := signalContext()
		defer cancel()

		db := openDB(cfg)
		defer db.Close()

		if err := store.Migrate(ctx, db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Schema applied")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
