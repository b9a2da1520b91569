package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shorts-studio/authsignal"
)

func newConnectCommand(app *appContext) *cobra.Command {
	var complete bool

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Authorize YouTube through the relay and wait for the callback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if complete {
				// runs alongside a waiting connect, so no state lock is taken
				msg := authsignal.Message{Type: authsignal.TypeYouTubeAuthSuccess}
				if err := authsignal.WriteSignalFile(app.cfg.State.Dir, msg); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "📨 Authorization signal sent")
				return nil
			}
			return app.runConnect(cmd)
		},
	}
	cmd.Flags().BoolVar(&complete, "complete", false, "Signal a waiting connect that authorization finished")
	return cmd
}

func (a *appContext) runConnect(cmd *cobra.Command) error {
	ctx := cmd.Context()
	p, err := a.openPipeline(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	if p.State().Connected {
		fmt.Fprintln(out, "✅ YouTube is already connected")
		return nil
	}

	bus := authsignal.NewBus()
	delivered := p.ListenForAuth(ctx, bus)

	listener := authsignal.NewListener(bus, a.logger.WithPrefix("signal"))
	if err := listener.Start(a.cfg.Auth.CallbackAddr); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = listener.Shutdown(shutdownCtx)
	}()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() {
		if err := authsignal.WatchFile(watchCtx, a.cfg.State.Dir, bus, a.logger.WithPrefix("signal")); err != nil {
			a.logger.Warn("signal file watch stopped", "error", err)
		}
	}()

	authURL, err := fetchAuthURL(ctx, a.cfg.Relay.BaseURL)
	if err != nil {
		a.logger.Warn("could not reach relay", "error", err)
		fmt.Fprintln(out, "Start `shorts-studio relay` and rerun connect, or finish with `shorts-studio connect --complete`.")
	} else {
		fmt.Fprintf(out, "🔗 Open this URL to authorize YouTube:\n\n  %s\n\n", authURL)
	}

	wait := time.Duration(a.cfg.Auth.WaitSec) * time.Second
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-delivered:
		fmt.Fprintln(out, "✅ YouTube connected")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("no authorization received within %s", wait)
	}
}

func fetchAuthURL(ctx context.Context, relayURL string) (string, error) {
	endpoint := strings.TrimRight(relayURL, "/") + "/api/auth/youtube/url"
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("relay returned %s", resp.Status)
	}
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode relay response: %w", err)
	}
	if body.URL == "" {
		return "", errors.New("relay returned no url")
	}
	return body.URL, nil
}
