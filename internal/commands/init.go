package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/duebook-dev/duebook/internal/config"
)

func newInitCommand() *cobra.Command {
	var listen string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a default duebook.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			return runInit(absDir, listen, dbPath)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (host:port)")
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path")
	return cmd
}

func runInit(dir, listen, dbPath string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	path := filepath.Join(dir, "duebook.yaml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	cfg := config.Default()
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}

	fmt.Printf("Initialized duebook project in %s\n", dir)
	return nil
}
