// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

func TestBusDeliversToEverySubscriber(t *testing.T) {
	bus := NewBus()

	var (
		mu  sync.Mutex
		got []string
	)
	record := func(name string) Handler {
		return func(_ context.Context, ev Event) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, name+":"+ev.RecordIDs[0])
		}
	}

	bus.Subscribe(TopicRecordReady, record("a"))
	bus.Subscribe(TopicRecordReady, record("b"))
	bus.Subscribe(TopicRecordDeleted, record("other"))

	require.NoError(t, bus.Publish(context.Background(), Event{Topic: TopicRecordReady, RecordIDs: []string{"r1"}}))
	bus.Close()

	assert.ElementsMatch(t, []string{"a:r1", "b:r1"}, got)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	var calls atomic.Int32
	off := bus.Subscribe(TopicRecordChanged, func(context.Context, Event) { calls.Add(1) })
	off()
	off() // idempotent

	require.NoError(t, bus.Publish(context.Background(), Event{Topic: TopicRecordChanged}))
	bus.Close()

	assert.Zero(t, calls.Load())
}

func TestBusPublishDoesNotWaitForHandlers(t *testing.T) {
	bus := NewBus()

	release := make(chan struct{})
	done := make(chan struct{})
	bus.Subscribe(TopicRecordReady, func(context.Context, Event) {
		<-release
		close(done)
	})

	require.NoError(t, bus.Publish(context.Background(), Event{Topic: TopicRecordReady}))

	select {
	case <-done:
		t.Fatal("handler finished before release")
	default:
	}

	close(release)
	bus.Close()

	select {
	case <-done:
	default:
		t.Fatal("Close returned before the handler finished")
	}
}

func TestBusHandlerPanicDoesNotAffectOthers(t *testing.T) {
	bus := NewBus()

	var calls atomic.Int32
	bus.Subscribe(TopicRecordReady, func(context.Context, Event) { panic("boom") })
	bus.Subscribe(TopicRecordReady, func(context.Context, Event) { calls.Add(1) })

	require.NoError(t, bus.Publish(context.Background(), Event{Topic: TopicRecordReady}))
	require.NoError(t, bus.Publish(context.Background(), Event{Topic: TopicRecordReady}))
	bus.Close()

	assert.Equal(t, int32(2), calls.Load())
}

func TestBusHandlerContextOutlivesPublisher(t *testing.T) {
	bus := NewBus()

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	started := make(chan struct{})
	bus.Subscribe(TopicRecordReady, func(hctx context.Context, _ Event) {
		<-started
		errs <- hctx.Err()
	})

	require.NoError(t, bus.Publish(ctx, Event{Topic: TopicRecordReady}))
	cancel()
	close(started)
	bus.Close()

	assert.NoError(t, <-errs)
}

func TestBusPublishStampsTime(t *testing.T) {
	bus := NewBus()

	stamps := make(chan time.Time, 1)
	bus.Subscribe(TopicRecordDeleted, func(_ context.Context, ev Event) { stamps <- ev.At })

	before := time.Now()
	require.NoError(t, bus.Publish(context.Background(), Event{Topic: TopicRecordDeleted}))
	bus.Close()

	assert.False(t, (<-stamps).Before(before))
}

func TestBusPublishValidation(t *testing.T) {
	bus := NewBus()

	err := bus.Publish(context.Background(), Event{})
	require.Error(t, err)
	assert.True(t, semerr.HasCode(err, semerr.CodeEventsTopicInvalid))

	bus.Close()
	err = bus.Publish(context.Background(), Event{Topic: TopicRecordReady})
	require.Error(t, err)
	assert.True(t, semerr.HasCode(err, semerr.CodeEventsBusClosed))
}
