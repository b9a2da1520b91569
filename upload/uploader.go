// Package upload is a STUB. Nothing is published: the audio and image are never
// muxed into a video, so Publish only waits a fixed delay and returns a fixed notice.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"shorts-studio/types"
)

// Notice is returned by every simulated publish
const Notice = "Upload simulated: no video was published to YouTube"

// Result describes a simulated publish
type Result struct {
	Simulated bool      `json:"simulated"`
	Notice    string    `json:"notice"`
	Title     string    `json:"title"`
	RunID     string    `json:"run_id"`
	At        time.Time `json:"at"`
}

// Simulator stands in for a real YouTube publish
type Simulator struct {
	Delay  time.Duration
	LogDir string
	logger *log.Logger
}

// New creates a Simulator
func New(delay time.Duration, logDir string) *Simulator {
	return &Simulator{Delay: delay, LogDir: logDir, logger: log.Default().WithPrefix("upload")}
}

// Publish waits the fixed delay and returns the fixed notice. ctx cancels the wait.
func (s *Simulator) Publish(ctx context.Context, runID string, meta *types.VideoMetadata) (*Result, error) {
	s.logger.Warn("upload is simulated, nothing will be published", "title", meta.Title)

	timer := time.NewTimer(s.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("simulated upload: %w", ctx.Err())
	case <-timer.C:
	}

	res := &Result{
		Simulated: true,
		Notice:    Notice,
		Title:     meta.Title,
		RunID:     runID,
		At:        time.Now().UTC(),
	}
	if s.LogDir != "" {
		if err := LogUpload(res, meta, s.LogDir); err != nil {
			s.logger.Warn("could not save upload log", "error", err)
		}
	}
	s.logger.Info(Notice)
	return res, nil
}

// LogUpload saves the simulated upload to the logs directory
func LogUpload(res *Result, meta *types.VideoMetadata, outputDir string) error {
	entry := map[string]any{
		"simulated":   res.Simulated,
		"notice":      res.Notice,
		"run_id":      res.RunID,
		"title":       meta.Title,
		"tags":        meta.Tags,
		"visibility":  meta.Visibility,
		"uploaded_at": res.At.Format(time.RFC3339),
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	logFile := filepath.Join(outputDir, fmt.Sprintf("upload_%s.json", res.At.Format("20060102_150405.000")))
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(logFile, data, 0644)
}
