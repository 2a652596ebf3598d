// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package events

import (
	"context"
	"log/slog"
)

// SyncRequester schedules a sync of the active index.
type SyncRequester interface {
	RequestRun()
}

// StaleMarker flags records for re-embedding.
type StaleMarker interface {
	MarkRecordsAsStale(ctx context.Context, recordIDs []string) (int64, error)
}

// RegisterIndexListeners wires record events to index maintenance: ready
// and deleted records request a sync, changed records are marked stale
// first. The returned function removes all three subscriptions.
func RegisterIndexListeners(bus *Bus, runner SyncRequester, marker StaleMarker) (unsubscribe func()) {
	request := func(context.Context, Event) { runner.RequestRun() }

	offReady := bus.Subscribe(TopicRecordReady, request)
	offDeleted := bus.Subscribe(TopicRecordDeleted, request)
	offChanged := bus.Subscribe(TopicRecordChanged, func(ctx context.Context, ev Event) {
		if len(ev.RecordIDs) > 0 {
			if _, err := marker.MarkRecordsAsStale(ctx, ev.RecordIDs); err != nil {
				slog.Error("marking changed records stale failed", "records", len(ev.RecordIDs), "error", err)
			}
		}
		runner.RequestRun()
	})

	return func() {
		offReady()
		offDeleted()
		offChanged()
	}
}
