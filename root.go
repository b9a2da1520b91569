package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"shorts-studio/config"
	"shorts-studio/generate"
	"shorts-studio/pipeline"
	"shorts-studio/store"
	"shorts-studio/upload"
)

func newRootCommand() *cobra.Command {
	app := &appContext{}

	rootCmd := &cobra.Command{
		Use:           "shorts-studio",
		Short:         "Turn a product name into a short-form video script, voiceover and cover image",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.loadConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&app.configPath, "config", "c", "config.yaml", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&app.stateDir, "state-dir", "", "Directory holding the pipeline state (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&app.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newSearchCommand(app))
	rootCmd.AddCommand(newAssetsCommand(app))
	rootCmd.AddCommand(newStatusCommand(app))
	rootCmd.AddCommand(newResetCommand(app))
	rootCmd.AddCommand(newConnectCommand(app))
	rootCmd.AddCommand(newUploadCommand(app))
	rootCmd.AddCommand(newRelayCommand(app))

	return rootCmd
}

// appContext is shared by every subcommand
type appContext struct {
	configPath string
	stateDir   string
	debug      bool

	cfg    *config.Config
	logger *log.Logger

	store    *store.Store
	lock     *store.Lock
	pipeline *pipeline.Pipeline
}

func (a *appContext) loadConfig() error {
	cfg, err := config.Load(strings.TrimSpace(a.configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dir := strings.TrimSpace(a.stateDir); dir != "" {
		cfg.State.Dir = dir
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(a.debug)
	log.SetDefault(a.logger)
	return nil
}

func newLogger(debug bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	if debug {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// openPipeline locks the state directory, opens the store and restores the
// saved session. Callers must defer close.
func (a *appContext) openPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	lock, err := store.AcquireLock(a.cfg.State.Dir)
	if err != nil {
		if errors.Is(err, store.ErrLocked) {
			return nil, fmt.Errorf("%w (is `shorts-studio connect` still waiting?)", err)
		}
		return nil, err
	}
	st, err := store.Open(a.cfg.State.Dir)
	if err != nil {
		_ = lock.Release()
		return nil, err
	}
	a.lock = lock
	a.store = st

	b := a.cfg.Backend
	gen := generate.New(generate.Config{
		APIKey:            b.APIKey,
		BaseURL:           b.BaseURL,
		TextModel:         b.TextModel,
		SpeechModel:       b.SpeechModel,
		ImageModel:        b.ImageModel,
		Voice:             b.Voice,
		Timeout:           b.Timeout(),
		RequestsPerMinute: b.RequestsPerMinute,
	}, generate.WithLogger(a.logger.WithPrefix("generate")))

	publisher := upload.New(time.Duration(a.cfg.Upload.SimulatedDelayMs)*time.Millisecond, a.cfg.Upload.LogDir)

	a.pipeline = pipeline.New(gen,
		pipeline.WithPersister(st),
		pipeline.WithPublisher(publisher),
		pipeline.WithLogger(a.logger.WithPrefix("pipeline")),
		pipeline.WithVisibility(a.cfg.Upload.Visibility),
	)
	a.pipeline.Restore(ctx)
	return a.pipeline, nil
}

func (a *appContext) close() {
	if a.pipeline != nil {
		a.pipeline.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close store", "error", err)
		}
	}
	if a.lock != nil {
		_ = a.lock.Release()
	}
}

// explain turns a pipeline failure into the message shown to the user
func explain(err error) error {
	if f, ok := pipeline.IsFailure(err); ok {
		if errors.Is(err, pipeline.ErrIllegalTransition) {
			return errors.New(f.Message)
		}
		return f
	}
	return err
}
