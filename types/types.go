package types

import (
	"fmt"
	"strings"
)

// Language selects the locale used for script and speech generation
type Language string

const (
	LanguagePrimary   Language = "en"
	LanguageSecondary Language = "hi"
)

// ParseLanguage accepts a language code or its Primary/Secondary alias
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "en", "primary":
		return LanguagePrimary, nil
	case "hi", "secondary":
		return LanguageSecondary, nil
	}
	return "", fmt.Errorf("unsupported language %q (want en or hi)", s)
}

// Stage is the pipeline step. It decides which operations are legal.
type Stage string

const (
	StageSearch  Stage = "search"
	StageScript  Stage = "script"
	StagePreview Stage = "preview"
	// StageUpload is a sub-mode of preview with the same legal operations.
	StageUpload Stage = "upload"
)

// Valid reports whether s is one of the known stages
func (s Stage) Valid() bool {
	switch s {
	case StageSearch, StageScript, StagePreview, StageUpload:
		return true
	}
	return false
}

// HoldsScript reports whether a script may be present at this stage
func (s Stage) HoldsScript() bool {
	return s == StageScript || s == StagePreview || s == StageUpload
}

// HoldsArtifacts reports whether audio and image may be present at this stage
func (s Stage) HoldsArtifacts() bool {
	return s == StagePreview || s == StageUpload
}

// Script is the three-part short-form narration
type Script struct {
	Hook string `json:"hook"`
	Body string `json:"body"`
	CTA  string `json:"cta"`
}

// Complete reports whether all three fields carry text
func (s Script) Complete() bool {
	return strings.TrimSpace(s.Hook) != "" &&
		strings.TrimSpace(s.Body) != "" &&
		strings.TrimSpace(s.CTA) != ""
}

// FullText joins the script into the single utterance sent to speech synthesis
func (s Script) FullText() string {
	return strings.Join([]string{s.Hook, s.Body, s.CTA}, " ")
}

// PlainText renders the script the way it is stored in exported bundles
func (s Script) PlainText() string {
	var sb strings.Builder
	sb.WriteString("HOOK: " + s.Hook + "\n\n")
	sb.WriteString("BODY: " + s.Body + "\n\n")
	sb.WriteString("CTA: " + s.CTA)
	return sb.String()
}

// Snapshot is the durable, non-binary subset of pipeline state
type Snapshot struct {
	Query       string   `json:"query"`
	Language    Language `json:"language,omitempty"`
	Stage       Stage    `json:"stage"`
	ProductInfo string   `json:"productInfo"`
	Script      *Script  `json:"script"`
}

// VideoMetadata holds the publish metadata handed to the upload step
type VideoMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Visibility  string   `json:"visibility"`
	Language    Language `json:"language"`
}
