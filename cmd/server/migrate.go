package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, log, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if cfg.Database.DSN == "" {
				return errors.New("migrate needs database.dsn or AUCTION_DATABASE_DSN")
			}

			pg, err := openPostgres(cfg, log)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, pg.Close()) }()

			if err := pg.Migrate(cmd.Context()); err != nil {
				return err
			}
			if seed {
				teams, lots := cfg.SeedEntities()
				if err := pg.Seed(cmd.Context(), teams, lots); err != nil {
					return err
				}
				log.Info("seeded", zap.Int("teams", len(teams)), zap.Int("players", len(lots)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "insert the teams and players from the seed section")
	return cmd
}
