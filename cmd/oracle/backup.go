package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/praptisharma28/consciousness-oracle/internal/backup"
	"github.com/praptisharma28/consciousness-oracle/internal/config"
)

var errNotSQLite = errors.New("backups are only supported for the sqlite storage engine")

func backupCmd() *cobra.Command {
	var (
		dir  string
		keep int
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the SQLite database and prune old snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.Engine != config.EngineSQLite {
				return errNotSQLite
			}

			res, err := backup.Snapshot(cmd.Context(), cfg.Storage.SQLitePath(), dir, time.Now())
			if err != nil {
				return err
			}
			cmd.Printf("wrote %s (%d bytes in %s)\n", res.Path, res.Size, res.Duration.Round(time.Millisecond))

			if keep > 0 {
				removed, err := backup.Prune(dir, keep)
				for _, path := range removed {
					cmd.Printf("removed %s\n", path)
				}
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "./data/backups", "directory to write backups to")
	cmd.Flags().IntVar(&keep, "keep", 24, "number of backups to keep (0 keeps all)")
	return cmd
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-file>",
		Short: "Replace the SQLite database with a backup (server must be stopped)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.Engine != config.EngineSQLite {
				return errNotSQLite
			}
			if err := backup.Restore(cmd.Context(), args[0], cfg.Storage.SQLitePath()); err != nil {
				return err
			}
			cmd.Printf("restored %s from %s\n", cfg.Storage.SQLitePath(), args[0])
			return nil
		},
	}
}
