package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/standscan/internal/rastersync"
	"github.com/sells-group/standscan/internal/volume"
)

var rastersCmd = &cobra.Command{
	Use:   "rasters",
	Short: "Manage local per-species volume rasters",
}

var rastersSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download the per-species rasters over FTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("rasters"); err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")

		table := volume.DefaultTable()
		if cfg.Volume.SpeciesTable != "" {
			t, err := volume.LoadTable(cfg.Volume.SpeciesTable)
			if err != nil {
				return err
			}
			table = t
		}

		s := rastersync.New(rastersync.Options{
			Addr:      cfg.FTP.Addr,
			User:      cfg.FTP.User,
			Pass:      cfg.FTP.Pass,
			RemoteDir: cfg.FTP.Dir,
			LocalDir:  cfg.Rasters.Dir,
			Timeout:   time.Duration(cfg.FTP.TimeoutSecs) * time.Second,
			Force:     force,
		})
		res, err := s.Sync(ctx, table.Files())
		if res != nil {
			zap.L().Info("rasters: sync finished",
				zap.Int("downloaded", len(res.Downloaded)),
				zap.Int("skipped", len(res.Skipped)),
				zap.Int64("bytes", res.Bytes),
			)
		}
		return err
	},
}

func init() {
	rastersSyncCmd.Flags().Bool("force", false, "download files even when a local copy exists")
	rastersCmd.AddCommand(rastersSyncCmd)
	rootCmd.AddCommand(rastersCmd)
}
