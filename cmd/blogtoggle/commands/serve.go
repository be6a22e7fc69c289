package commands

import (
	"fmt"
	"log/slog"

	"blogtoggle/internal/components/telemetry"
	"blogtoggle/internal/devserver"
	"blogtoggle/internal/devserver/db"
	"blogtoggle/pkg/serviceutil"
	"blogtoggle/pkg/sqliteutil"

	"github.com/spf13/cobra"
)

var (
	servePort *int
	serveDb   *string
	serveSeed *bool
)

func init() {
	servePort = serveCmd.Flags().Int("port", 8000, "The port to listen on.")
	serveDb = serveCmd.Flags().String("db", ":memory:", "The sqlite database to keep users, articles, favorites and follows in.")
	serveSeed = serveCmd.Flags().Bool("seed", false, "Create the test users and article when the database is empty.")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--port 8000] [--db <path/to/blog.db>] [--seed]",
	Short: "Serves a local blog with working favorite and follow buttons.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tel := telemetry.SlogAPI{}

		database, err := sqliteutil.OpenWithSchema(db.Schema, *serveDb)
		if err != nil {
			return err
		}
		defer database.Close()

		store := devserver.NewStore(database)
		if *serveSeed {
			articles, err := store.Articles(ctx)
			if err != nil {
				return err
			}
			if len(articles) == 0 {
				err = store.Seed(ctx)
				if err != nil {
					return fmt.Errorf("seed: %w", err)
				}
				slog.Info("seeded database", "db", *serveDb)
			}
		}

		telemetry.InstrumentPerfStats(ctx, tel)
		serviceutil.StartHttpServer(ctx, *servePort, devserver.NewServer(store, tel))
		return nil
	},
}
