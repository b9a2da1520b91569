// Package bundle packs the generated image, audio and script into one zip archive.
package bundle

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"

	"shorts-studio/types"
)

// Entry names inside every archive
const (
	ImageName  = "image.png"
	AudioName  = "audio.wav"
	ScriptName = "script.txt"
)

// Artifacts is what an export may contain. Nil or empty members are omitted.
type Artifacts struct {
	Image  []byte
	Audio  []byte
	Script *types.Script
}

// File is one named payload inside a bundle or a standalone download
type File struct {
	Name string
	Data []byte
}

// Archive is a finished export
type Archive struct {
	Name    string
	Data    []byte
	Entries []string
}

// Files lists the artifacts as individual downloads, in archive order
func (a Artifacts) Files() []File {
	var files []File
	if len(a.Image) > 0 {
		files = append(files, File{Name: ImageName, Data: a.Image})
	}
	if len(a.Audio) > 0 {
		files = append(files, File{Name: AudioName, Data: a.Audio})
	}
	if a.Script != nil {
		files = append(files, File{Name: ScriptName, Data: []byte(a.Script.PlainText())})
	}
	return files
}

// Exporter builds archives with names that never repeat within a process
type Exporter struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewExporter creates an exporter using the wall clock
func NewExporter() *Exporter {
	return &Exporter{now: time.Now}
}

// Export writes every present artifact into a new zip archive
func (e *Exporter) Export(a Artifacts) (Archive, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	modified := e.now()

	var entries []string
	for _, f := range a.Files() {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return Archive{}, fmt.Errorf("add %s: %w", f.Name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return Archive{}, fmt.Errorf("write %s: %w", f.Name, err)
		}
		entries = append(entries, f.Name)
	}
	if err := zw.Close(); err != nil {
		return Archive{}, fmt.Errorf("finish archive: %w", err)
	}

	return Archive{
		Name:    e.nextName(),
		Data:    buf.Bytes(),
		Entries: entries,
	}, nil
}

func (e *Exporter) nextName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	stamp := e.now().UnixMilli()
	if stamp <= e.last {
		stamp = e.last + 1
	}
	e.last = stamp
	return fmt.Sprintf("shorts-assets-%d.zip", stamp)
}
