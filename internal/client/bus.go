// Package client holds the tab-side engines: the cross-tab broadcast bus,
// the audio arbiter that lets exactly one visible tab play the adhan, and
// the 1 Hz countdown engine.
package client

import (
	"sync"
	"time"
)

type MessageType string

const (
	// MsgPlayIntent is a timestamped claim broadcast before playing.
	MsgPlayIntent MessageType = "play-intent"
	// MsgNowPlaying announces the winner; every other tab silences.
	MsgNowPlaying MessageType = "now-playing"
	// MsgStop tells all tabs to stop playback.
	MsgStop MessageType = "stop"
)

type Message struct {
	Type      MessageType
	TabID     string
	Kind      string
	Timestamp time.Time
	Visible   bool
}

// Bus is the same-origin broadcast channel between tabs. Delivery is
// best-effort and advisory: a slow subscriber drops messages rather than
// blocking the publisher.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Message
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Message)}
}

// Subscribe returns a receive channel and a cancel func.
func (b *Bus) Subscribe() (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Message, 16)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers msg to every subscriber, including the sender's own tab.
func (b *Bus) Publish(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			// subscriber is behind, drop
		}
	}
}
