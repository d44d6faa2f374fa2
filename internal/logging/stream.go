package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEvent is one record as served by GET /api/logs.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	JobID         string            `json:"job_id,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	Worker        int               `json:"worker,omitempty"`
	EventType     string            `json:"event_type,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
	Details       []DetailField     `json:"details,omitempty"`
}

// DetailField is one of the bullet lines the console handler prints under
// INFO records.
type DetailField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// StreamHub is a bounded ring of recent log events. Readers page through it
// by sequence number and may block until something newer arrives.
type StreamHub struct {
	mu       sync.Mutex
	wake     chan struct{}
	capacity int
	events   []LogEvent
	last     uint64
}

// NewStreamHub returns a hub that keeps the newest capacity events.
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	return &StreamHub{capacity: capacity, wake: make(chan struct{})}
}

// Publish assigns the next sequence number to evt and stores it, evicting
// the oldest event when full.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.last++
	evt.Sequence = h.last
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if len(h.events) == h.capacity {
		h.events = append(h.events[:0], h.events[1:]...)
	}
	h.events = append(h.events, evt)
	close(h.wake)
	h.wake = make(chan struct{})
	h.mu.Unlock()
}

// Fetch returns up to limit events newer than since, plus the cursor to pass
// as since on the next call. With wait set, Fetch blocks until an event
// arrives or ctx ends.
func (h *StreamHub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}
	for {
		h.mu.Lock()
		events, next := h.afterLocked(since, limit)
		wake := h.wake
		h.mu.Unlock()

		if len(events) > 0 || !wait {
			return events, next, ctx.Err()
		}
		select {
		case <-ctx.Done():
			return nil, next, ctx.Err()
		case <-wake:
		}
	}
}

// Tail returns the newest limit events and the latest sequence number.
func (h *StreamHub) Tail(limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	start := max(len(h.events)-limit, 0)
	return append([]LogEvent(nil), h.events[start:]...), h.last
}

// Evicted reports whether events after since have already been pushed out
// of the ring, so a reader resuming from since has missed some.
func (h *StreamHub) Evicted(since uint64) bool {
	if h == nil || since == 0 {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events) > 0 && h.events[0].Sequence > since+1
}

// afterLocked returns events with Sequence > since. The cursor is the last
// returned sequence when limit truncated the page, else the latest one.
func (h *StreamHub) afterLocked(since uint64, limit int) ([]LogEvent, uint64) {
	idx := len(h.events)
	for i, evt := range h.events {
		if evt.Sequence > since {
			idx = i
			break
		}
	}
	rest := h.events[idx:]
	if len(rest) > limit {
		page := append([]LogEvent(nil), rest[:limit]...)
		return page, page[len(page)-1].Sequence
	}
	if len(rest) == 0 {
		return nil, h.last
	}
	return append([]LogEvent(nil), rest...), h.last
}

// hubHandler is the slog side of a StreamHub. It sits beside the output
// handlers in the fanout so the API sees exactly what the log file sees.
type hubHandler struct {
	hub   *StreamHub
	level slog.Leveler
	attrs []slog.Attr
}

func newHubHandler(hub *StreamHub, level slog.Leveler) slog.Handler {
	if hub == nil {
		return nil
	}
	return &hubHandler{hub: hub, level: level}
}

func (h *hubHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *hubHandler) Handle(_ context.Context, record slog.Record) error {
	h.hub.Publish(eventFromRecord(record, h.attrs))
	return nil
}

func (h *hubHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.attrs = append(append(make([]slog.Attr, 0, len(h.attrs)+len(attrs)), h.attrs...), attrs...)
	return &next
}

// WithGroup is a no-op: events are flat key/value maps.
func (h *hubHandler) WithGroup(string) slog.Handler {
	return h
}

func eventFromRecord(record slog.Record, preAttrs []slog.Attr) LogEvent {
	event := LogEvent{
		Timestamp: record.Time,
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
	}

	var kvs []kv
	flattenAttrs(&kvs, nil, preAttrs)
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&kvs, nil, attr)
		return true
	})
	kvs = dedupeKVsByKey(kvs)

	for _, attr := range kvs {
		value := attrString(attr.value)
		switch attr.key {
		case FieldComponent:
			event.Component = value
		case FieldJobID:
			event.JobID = value
		case FieldStage:
			event.Stage = value
		case FieldWorker:
			if attr.value.Kind() == slog.KindInt64 {
				event.Worker = int(attr.value.Int64())
			}
		case FieldEventType:
			event.EventType = value
		case FieldCorrelationID:
			event.CorrelationID = value
		default:
			if event.Fields == nil {
				event.Fields = make(map[string]string)
			}
			event.Fields[attr.key] = value
		}
	}

	if info, _ := selectInfoFields(kvs, infoAttrLimit); len(info) > 0 {
		event.Details = make([]DetailField, 0, len(info))
		for _, field := range info {
			event.Details = append(event.Details, DetailField{Label: field.label, Value: field.value})
		}
	}
	return event
}
