package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/standscan/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis HTTP server",
	Long:  "Serves /api/volume, /api/trafficability, /api/season, /tiles/trafficability, /health and /metrics.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(cfg, "serve")
		if err != nil {
			return err
		}
		defer e.Close()

		deps := api.Deps{
			Volume:         e.Volume,
			Trafficability: e.Trafficability,
			Tiles:          e.Tiles,
			Breakers:       e.Breakers,
		}
		if e.Season != nil {
			deps.Season = e.Season
		}
		server := api.NewServer(deps, api.Options{
			CORSOrigins: cfg.Server.CORSOrigins,
			Timeout:     time.Duration(cfg.Server.TimeoutSecs) * time.Second,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           server.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
