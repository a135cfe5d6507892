package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/duplexhq/duplex/internal/config"
	"github.com/duplexhq/duplex/internal/database"
	"github.com/duplexhq/duplex/internal/logging"
)

// MigrateCommand returns the CLI command for applying schema migrations
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Directory containing .sql migration files",
				Value: "migrations",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return err
			}
			logging.Setup(cfg.Logging.Level)

			ctx := context.Background()
			pool, err := database.NewPool(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := database.Migrate(ctx, pool, c.String("dir")); err != nil {
				return err
			}

			fmt.Println("Migrations applied")
			return nil
		},
	}
}
