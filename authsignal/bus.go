// Package authsignal delivers the out-of-band "authorization completed" event
// from a separate context (browser tab, another process) to the pipeline.
// Listeners are one-shot: each handler runs at most once and is then retired.
package authsignal

import (
	"sync"
)

// TypeYouTubeAuthSuccess is posted by the relay's callback page
const TypeYouTubeAuthSuccess = "YOUTUBE_AUTH_SUCCESS"

// QueryFlag is the fallback query parameter carrying the same signal
const QueryFlag = "youtube_success"

// Message is the payload posted back by the authorization context
type Message struct {
	Type string `json:"type"`
}

type subscription struct {
	id      uint64
	typ     string
	handler func(Message)
}

// Bus routes messages to one-shot subscribers
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{}
}

// Once registers handler for the next message of typ.
// The returned func unsubscribes; it is a no-op after delivery.
func (b *Bus) Once(typ string, handler func(Message)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, typ: typ, handler: handler})
	b.mu.Unlock()
	return func() { b.remove(id) }
}

// Publish delivers msg to every matching subscriber and retires them.
// It reports how many handlers ran.
func (b *Bus) Publish(msg Message) int {
	b.mu.Lock()
	var fire []subscription
	kept := b.subs[:0]
	for _, s := range b.subs {
		if s.typ == msg.Type {
			fire = append(fire, s)
			continue
		}
		kept = append(kept, s)
	}
	b.subs = kept
	b.mu.Unlock()

	for _, s := range fire {
		s.handler(msg)
	}
	return len(fire)
}

// Pending returns the number of live subscriptions
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}
