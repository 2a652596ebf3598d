// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package records writes canonical records and announces the changes on the
// event bus so the active index can follow.
package records

import (
	"context"
	"log/slog"

	"github.com/sigil-dev/semdex/internal/events"
	"github.com/sigil-dev/semdex/internal/store"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// Service is the write path for records.
type Service struct {
	records store.RecordStore
	bus     events.Publisher
}

func New(records store.RecordStore, bus events.Publisher) *Service {
	return &Service{records: records, bus: bus}
}

// Put creates or replaces a record. A record that becomes ready for the
// first time publishes record.ready; any write to a record that was already
// ready publishes record.changed so its document is re-embedded, or dropped
// when it is no longer ready.
func (s *Service) Put(ctx context.Context, rec *store.Record) error {
	prev, err := s.records.GetRecord(ctx, rec.ID)
	if err != nil && !semerr.IsNotFound(err) {
		return err
	}
	wasReady := prev != nil && prev.Ready

	if err := s.records.PutRecord(ctx, rec); err != nil {
		return err
	}

	switch {
	case wasReady:
		s.publish(ctx, events.TopicRecordChanged, rec.ID)
	case rec.Ready:
		s.publish(ctx, events.TopicRecordReady, rec.ID)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*store.Record, error) {
	return s.records.GetRecord(ctx, id)
}

// Delete removes a record. Its items become orphans and are cleaned up by
// the next sync.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.records.DeleteRecord(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.TopicRecordDeleted, id)
	return nil
}

// MarkChanged announces that the content behind ids changed outside Put.
func (s *Service) MarkChanged(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return semerr.New(semerr.CodeStoreRecordPutInvalid, "at least one record id is required")
	}
	s.publish(ctx, events.TopicRecordChanged, ids...)
	return nil
}

// publish logs instead of failing the write: the record is already stored
// and the next sync picks it up regardless.
func (s *Service) publish(ctx context.Context, topic events.Topic, ids ...string) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, events.Event{Topic: topic, RecordIDs: ids}); err != nil {
		slog.Warn("publishing record event failed", "topic", topic, "records", len(ids), "error", err)
	}
}
