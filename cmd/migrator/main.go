package main

import (
	"fmt"
	"log"
	"os"

	"catalog-service/config"
	"catalog-service/internal/store"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

var databaseURL string

var rootCmd = &cobra.Command{
	Use:          "migrator",
	Short:        "Apply catalog-service schema migrations",
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "postgres DSN (default: DATABASE_URL)")

	rootCmd.AddCommand(
		gooseCommand("up", "Apply all pending migrations", cobra.NoArgs),
		gooseCommand("up-by-one", "Apply the next pending migration", cobra.NoArgs),
		gooseCommand("down", "Roll back the latest migration", cobra.NoArgs),
		gooseCommand("status", "Print the status of every migration", cobra.NoArgs),
		gooseCommand("version", "Print the current schema version", cobra.NoArgs),
		gooseCommand("down-to", "Roll back to the given version", cobra.ExactArgs(1)),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func gooseCommand(name, short string, args cobra.PositionalArgs) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := databaseURL
			if dsn == "" {
				dsn = config.Load().Database.URL
			}

			db, err := goose.OpenDBWithDriver("postgres", dsn)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			if err := store.RunMigrations(db, name, args...); err != nil {
				return err
			}
			log.Printf("migrations: %s OK", name)
			return nil
		},
	}
}
