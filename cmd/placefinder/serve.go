package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/OCAP2/placefinder/internal/config"
	"github.com/OCAP2/placefinder/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

// serveCmd runs the HTTP and WebSocket API until interrupted
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the marker API, WebSocket push channel and metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, appOptions{withHub: true, withSinks: true, seed: true})
		if err != nil {
			return err
		}
		defer a.Close()

		cfg := config.GetServerConfig()
		if serveAddr != "" {
			cfg.Addr = serveAddr
		}
		srv := server.NewServer(cfg, a.dispatcher, a.hub, a.logger)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		a.logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
