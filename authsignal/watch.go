package authsignal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// SignalFileName is dropped into the state directory by `shorts-studio connect --complete`
const SignalFileName = "auth.signal"

// WriteSignalFile posts msg through the file channel
func WriteSignalFile(dir string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, SignalFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write signal: %w", err)
	}
	return os.Rename(tmp, filepath.Join(dir, SignalFileName))
}

// WatchFile publishes signal files dropped into dir until ctx is done.
// Each consumed file is removed so a signal is delivered once.
func WatchFile(ctx context.Context, dir string, bus *Bus, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default().WithPrefix("signal")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Debug("fsnotify watching dir", "dir", dir)

	target := filepath.Join(dir, SignalFileName)
	// a signal written before the watch started still counts
	consumeSignalFile(target, bus, logger)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			logger.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			consumeSignalFile(target, bus, logger)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Debug("fsnotify error", "dir", dir, "error", err)
		}
	}
}

func consumeSignalFile(path string, bus *Bus, logger *log.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("read signal file", "error", err)
		}
		return
	}
	_ = os.Remove(path)

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil || strings.TrimSpace(msg.Type) == "" {
		logger.Warn("ignoring malformed signal file", "path", path)
		return
	}
	bus.Publish(msg)
}
