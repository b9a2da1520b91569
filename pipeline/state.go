package pipeline

import (
	"errors"
	"fmt"

	"shorts-studio/audio"
	"shorts-studio/blob"
	"shorts-studio/types"
)

// State is the in-memory pipeline aggregate. Observers receive copies.
type State struct {
	RunID       string
	Query       string
	Language    types.Language
	Stage       types.Stage
	ProductInfo string
	Script      *types.Script
	Audio       *audio.Artifact
	Image       *blob.Blob
	LastError   *Failure
	Connected   bool
}

func initialState() State {
	return State{Language: types.LanguagePrimary, Stage: types.StageSearch}
}

// HasArtifacts reports whether both generated assets are bound
func (s State) HasArtifacts() bool {
	return s.Audio != nil && s.Image != nil
}

// Snapshot is the durable subset of s
func (s State) Snapshot() types.Snapshot {
	snap := types.Snapshot{
		Query:       s.Query,
		Language:    s.Language,
		Stage:       s.Stage,
		ProductInfo: s.ProductInfo,
	}
	if s.Script != nil {
		sc := *s.Script
		snap.Script = &sc
	}
	return snap
}

// Validate checks the stage invariants
func (s State) Validate() error {
	if !s.Stage.Valid() {
		return fmt.Errorf("unknown stage %q", s.Stage)
	}
	if s.Script != nil && !s.Stage.HoldsScript() {
		return fmt.Errorf("script present at stage %s", s.Stage)
	}
	if (s.Audio != nil) != (s.Image != nil) {
		return errors.New("only one artifact bound")
	}
	if s.HasArtifacts() && !s.Stage.HoldsArtifacts() {
		return fmt.Errorf("artifacts present at stage %s", s.Stage)
	}
	return nil
}

func (s State) clone() State {
	out := s
	if s.Script != nil {
		sc := *s.Script
		out.Script = &sc
	}
	if s.LastError != nil {
		f := *s.LastError
		out.LastError = &f
	}
	return out
}

func sameSnapshot(a, b types.Snapshot) bool {
	if a.Query != b.Query || a.Language != b.Language || a.Stage != b.Stage || a.ProductInfo != b.ProductInfo {
		return false
	}
	if (a.Script == nil) != (b.Script == nil) {
		return false
	}
	return a.Script == nil || *a.Script == *b.Script
}

// normalizeRestored reconciles a snapshot with the fact that artifacts are never
// restored: a preview or upload session falls back to script review.
func normalizeRestored(snap types.Snapshot) types.Snapshot {
	// a missing or unknown language falls back to the primary one
	lang, err := types.ParseLanguage(string(snap.Language))
	if err != nil {
		lang = types.LanguagePrimary
	}
	snap.Language = lang
	if snap.Script != nil && !snap.Script.Complete() {
		snap.Script = nil
	}
	switch snap.Stage {
	case types.StagePreview, types.StageUpload, types.StageScript:
		if snap.Script == nil {
			snap.Stage = types.StageSearch
		} else {
			snap.Stage = types.StageScript
		}
	default:
		snap.Stage = types.StageSearch
		snap.Script = nil
	}
	return snap
}
