package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/backup"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/bootstrap"
)

func init() {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Take, list or restore snapshots of the SQLite store",
	}
	cmd.PersistentFlags().String("dir", "", "Snapshot directory (default: <data>/snapshots)")

	cmd.AddCommand(&cobra.Command{
		Use:   "take",
		Short: "Write a verified snapshot and prune old ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := snapshotManager(cmd)
			if err != nil {
				return err
			}
			snap, err := m.Take(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(snap)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := snapshotManager(cmd)
			if err != nil {
				return err
			}
			snaps, err := m.List()
			if err != nil {
				return err
			}
			printJSON(snaps)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "restore [snapshot]",
		Short: "Replace the store with a snapshot (stop the server first)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := snapshotManager(cmd)
			if err != nil {
				return err
			}
			if err := m.Restore(cmd.Context(), args[0]); err != nil {
				return err
			}
			printJSON(map[string]string{"restored": args[0]})
			return nil
		},
	})

	RootCmd.AddCommand(cmd)
}

func snapshotManager(cmd *cobra.Command) (*backup.Manager, error) {
	cfg := loadConfig()
	if cfg.Storage.Engine != "sqlite" && cfg.Storage.Engine != "" {
		return nil, fmt.Errorf("snapshots need the sqlite storage engine, not %q", cfg.Storage.Engine)
	}
	dir, _ := cmd.Flags().GetString("dir")
	return backup.NewManager(backup.Config{
		DBPath: bootstrap.SQLitePath(cfg.Storage),
		Dir:    dir,
	})
}
