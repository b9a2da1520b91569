// Package blob hands out revocable references to in-memory binary artifacts.
// Every Blob created through a Registry stays live until Revoke, so callers
// that replace or discard an artifact must release it explicitly.
package blob

import (
	"sync"

	"github.com/google/uuid"
)

// Blob is a live reference to generated bytes
type Blob struct {
	ID       string
	MimeType string

	mu   sync.Mutex
	data []byte
	reg  *Registry
}

// Data returns the backing bytes, or nil once the blob has been revoked
func (b *Blob) Data() []byte {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// Size returns the byte length of a live blob
func (b *Blob) Size() int {
	return len(b.Data())
}

// Released reports whether Revoke has been called
func (b *Blob) Released() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data == nil
}

// Revoke drops the backing buffer and removes the handle from its registry.
// Safe on nil and safe to call more than once.
func (b *Blob) Revoke() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.data = nil
	reg := b.reg
	b.reg = nil
	b.mu.Unlock()
	if reg != nil {
		reg.forget(b.ID)
	}
}

// Registry tracks live blobs
type Registry struct {
	mu   sync.Mutex
	live map[string]*Blob
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{live: make(map[string]*Blob)}
}

// Create registers data under a fresh "blob:" handle
func (r *Registry) Create(data []byte, mimeType string) *Blob {
	b := &Blob{
		ID:       "blob:" + uuid.NewString(),
		MimeType: mimeType,
		data:     data,
		reg:      r,
	}
	r.mu.Lock()
	r.live[b.ID] = b
	r.mu.Unlock()
	return b
}

// Lookup resolves a live handle
func (r *Registry) Lookup(id string) (*Blob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.live[id]
	return b, ok
}

// Live returns the number of handles not yet revoked
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

func (r *Registry) forget(id string) {
	r.mu.Lock()
	delete(r.live, id)
	r.mu.Unlock()
}
