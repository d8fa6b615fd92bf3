package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	ekkohttp "github.com/2re1million/ekko/internal/http"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(deps *dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the recorder and pipeline behind the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := deps.newApp(ctx)
			if err != nil {
				return err
			}
			if err := a.Start(); err != nil {
				return err
			}
			if err := a.ServeObservability(); err != nil {
				_ = a.Shutdown(context.Background())
				return err
			}

			server := &http.Server{
				Addr:              deps.cfg.Service.HTTPAddr,
				Handler:           ekkohttp.NewRouter(a),
				ReadHeaderTimeout: 5 * time.Second,
			}
			serveErr := make(chan error, 1)
			go func() {
				a.Logger.Info().Str("addr", server.Addr).Msg("Ekko API listening")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case <-ctx.Done():
			case err = <-serveErr:
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if e := server.Shutdown(shutdownCtx); e != nil {
				a.Logger.Warn().Err(e).Msg("HTTP server shutdown")
			}
			return errors.Join(err, a.Shutdown(shutdownCtx))
		},
	}
}
