package db

import (
	"database/sql"

	"github.com/rs/zerolog/log"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github/chapool/vault-relayer/internal/config"

	_ "github.com/lib/pq"
)

const migrationsDir = "migrations"

func newMigrate() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applies all pending database migrations",
		Run: func(_ *cobra.Command, _ []string) {
			applied, err := applyMigrations()
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to apply migrations")
			}

			log.Info().Int("applied", applied).Msg("Finished applying migrations")
		},
	}
}

func applyMigrations() (int, error) {
	cfg := config.DefaultServiceConfigFromEnv()

	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return 0, err
	}
	defer db.Close()

	migrations := &migrate.FileMigrationSource{Dir: migrationsDir}

	return migrate.Exec(db, "postgres", migrations, migrate.Up)
}
