package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"shorts-studio/relay"
)

func newRelayCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Serve the YouTube authorization relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rc := app.cfg.Relay
			logger := app.logger.WithPrefix("relay")
			srv, err := relay.New(relay.Config{
				ClientID:     rc.ClientID,
				ClientSecret: rc.ClientSecret,
				RedirectURL:  rc.RedirectURL,
				AppURL:       rc.AppURL,
			}, logger)
			if err != nil {
				return err
			}

			server := &http.Server{
				Addr:              rc.Addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- server.ListenAndServe() }()
			logger.Info("relay listening", "addr", rc.Addr)

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			}
		},
	}
}
