// Package realtime fans change notifications out to connected clients,
// one named channel per notification stream.
package realtime

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// ChannelAttendance carries per-cell attendance changes.
	ChannelAttendance = "attendance_channel"
	// ChannelSync carries whole-resource refresh notices.
	ChannelSync = "attendance_sync"

	TypeAttendanceChange = "attendance_change"
	TypeDataUpdated      = "data_updated"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 32

// Message is the payload written to subscribers as JSON.
type Message struct {
	Type      string    `json:"type"`
	Resource  string    `json:"resource,omitempty"`
	Session   int       `json:"session,omitempty"`
	MemberNo  int       `json:"memberNo,omitempty"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type subscriber struct {
	ch chan Message
}

// Hub is an in-process publish/subscribe fan-out.
// INVARIANT: Publish never blocks; a full subscriber queue drops the message for that subscriber.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{}), buffer: DefaultBuffer}
}

// IsChannel reports whether name is a known channel.
func IsChannel(name string) bool {
	return name == ChannelAttendance || name == ChannelSync
}

// Subscribe registers a listener on channel. The returned cancel func
// unregisters it and closes the message channel; it is safe to call twice.
func (h *Hub) Subscribe(channel string) (<-chan Message, func()) {
	sub := &subscriber{ch: make(chan Message, h.buffer)}

	h.mu.Lock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[*subscriber]struct{})
	}
	h.subs[channel][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[channel], sub)
			if len(h.subs[channel]) == 0 {
				delete(h.subs, channel)
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers msg to every subscriber of channel and returns how many received it.
func (h *Hub) Publish(channel string, msg Message) int {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[channel] {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			slog.Warn("realtime_message_dropped", "channel", channel, "type", msg.Type)
		}
	}
	return delivered
}

// Subscribers returns the listener count for channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}
