package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nstogner/motifchat/pkg/chat"
	"github.com/nstogner/motifchat/pkg/server"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat over a websocket at /ws",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger, closer, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lister, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}
	defer lister.Close()

	srv := server.New(server.Options{
		NewSession: func(ctx context.Context) (*chat.Session, error) {
			return newSession(ctx, cfg, logger)
		},
		Models: lister,
		Names:  names(cfg),
		Logger: logger,
	})

	addr := cfg.Listen
	if listenAddr != "" {
		addr = listenAddr
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(addr) }()
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s (websocket at /ws)\n", addr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
