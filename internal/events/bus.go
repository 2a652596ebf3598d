// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package events is an in-process publish/subscribe bus for record changes.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// Topic names a kind of event.
type Topic string

const (
	// TopicRecordReady fires when a record becomes ready for indexing.
	TopicRecordReady Topic = "record.ready"
	// TopicRecordDeleted fires when a record is removed.
	TopicRecordDeleted Topic = "record.deleted"
	// TopicRecordChanged fires when an indexed record's content changes.
	TopicRecordChanged Topic = "record.changed"
)

// Event is the payload delivered to handlers.
type Event struct {
	Topic     Topic
	RecordIDs []string
	At        time.Time
}

// Handler receives events. Handlers run concurrently with each other.
type Handler func(ctx context.Context, ev Event)

// Publisher is the sending side of the bus.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Bus delivers each published event to every handler subscribed to its
// topic at publish time. Delivery is fire-and-forget with no ordering
// between handlers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic]map[uint64]Handler
	nextID uint64
	closed bool

	deliveries conc.WaitGroup
}

var _ Publisher = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{subs: make(map[Topic]map[uint64]Handler)}
}

// Subscribe registers h for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]Handler)
	}
	b.subs[topic][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], id)
			b.mu.Unlock()
		})
	}
}

// Publish hands ev to each subscriber on its own goroutine and returns
// without waiting. Handler panics are recovered and logged.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev.Topic == "" {
		return semerr.New(semerr.CodeEventsTopicInvalid, "event topic is required")
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return semerr.New(semerr.CodeEventsBusClosed, "event bus is closed", semerr.Field("topic", string(ev.Topic)))
	}

	hctx := context.WithoutCancel(ctx)
	for _, h := range b.subs[ev.Topic] {
		b.deliveries.Go(func() {
			if r := panics.Try(func() { h(hctx, ev) }); r != nil {
				slog.Error("event handler panic recovered",
					"topic", ev.Topic,
					"panic", r.Value,
					"stack", string(r.Stack))
			}
		})
	}
	return nil
}

// Close rejects further publishes and waits for in-flight deliveries.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.deliveries.Wait()
}
