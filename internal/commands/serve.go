package commands

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/duebook-dev/duebook/internal/api"
	"github.com/duebook-dev/duebook/internal/commitments"
	"github.com/duebook-dev/duebook/internal/config"
	"github.com/duebook-dev/duebook/internal/store"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the duebook HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "duebook.yaml", "path to duebook.yaml")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	srv := api.NewServer(commitments.NewService(db), db, logger)
	if cfg.Metrics.Enabled {
		srv.EnableMetrics()
	}

	logger.Info("serving", "listen", cfg.Server.Listen, "db", cfg.Storage.Path)
	return http.ListenAndServe(cfg.Server.Listen, srv.Handler())
}
