package audio

import (
	"time"

	"shorts-studio/blob"
)

// MimeType of every artifact produced here
const MimeType = "audio/wav"

// Artifact is a playable WAV container backed by a registry blob
type Artifact struct {
	Format Format
	blob   *blob.Blob
}

// NewArtifact encodes pcm and registers the container with reg
func NewArtifact(reg *blob.Registry, pcm []byte, f Format) *Artifact {
	return &Artifact{
		Format: f,
		blob:   reg.Create(Encode(pcm, f), MimeType),
	}
}

// Handle is the blob reference used for playback and download
func (a *Artifact) Handle() string {
	if a == nil || a.blob == nil {
		return ""
	}
	return a.blob.ID
}

// Bytes returns the full container, header included
func (a *Artifact) Bytes() []byte {
	if a == nil {
		return nil
	}
	return a.blob.Data()
}

// PCM returns the samples after the header
func (a *Artifact) PCM() []byte {
	b := a.Bytes()
	if len(b) < HeaderSize {
		return nil
	}
	return b[HeaderSize:]
}

// Size is the container length in bytes
func (a *Artifact) Size() int {
	return len(a.Bytes())
}

// Duration of the contained samples
func (a *Artifact) Duration() time.Duration {
	rate := a.Format.ByteRate()
	if rate == 0 {
		return 0
	}
	return time.Duration(len(a.PCM())) * time.Second / time.Duration(rate)
}

// Release revokes the blob. Safe on nil and on an already released artifact.
func (a *Artifact) Release() {
	if a == nil {
		return
	}
	a.blob.Revoke()
}

// Released reports whether the backing buffer has been reclaimed
func (a *Artifact) Released() bool {
	return a == nil || a.blob.Released()
}
