// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package indexer

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// Lane serialises the jobs of one index. A job runs on the goroutine that
// submitted it once it holds the lane's turn; waiters take the turn in
// arrival order.
type Lane struct {
	indexID string
	turn    chan struct{} // holds the token while no job runs

	mu      sync.Mutex
	closed  bool
	entered sync.WaitGroup
}

func NewLane(indexID string) *Lane {
	l := &Lane{indexID: indexID, turn: make(chan struct{}, 1)}
	l.turn <- struct{}{}
	return l
}

// Submit runs fn once every earlier job has finished and returns its error.
// A ctx that ends before fn starts skips it.
func (l *Lane) Submit(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !l.enter() {
		return semerr.New(semerr.CodeIndexerLaneClosed, "index lane is closed", semerr.FieldIndexID(l.indexID))
	}
	defer l.entered.Done()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.turn:
	}
	defer func() { l.turn <- struct{}{} }()

	if err := ctx.Err(); err != nil {
		return err
	}
	return l.call(ctx, fn)
}

func (l *Lane) enter() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.entered.Add(1)
	return true
}

func (l *Lane) call(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("index job panic recovered",
				"index_id", l.indexID,
				"panic", r,
				"stack", string(debug.Stack()))
			err = semerr.Errorf(semerr.CodeIndexerSyncFailure, "index job panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Close refuses new jobs and returns once the ones already submitted are
// done. Repeated calls are no-ops beyond the wait.
func (l *Lane) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.entered.Wait()
}

// LanePool keys lanes by index id.
type LanePool struct {
	mu     sync.Mutex
	lanes  map[string]*Lane
	closed bool
}

func NewLanePool() *LanePool {
	return &LanePool{lanes: make(map[string]*Lane)}
}

// Get returns the lane for indexID, creating it on first use.
func (p *LanePool) Get(indexID string) (*Lane, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, semerr.New(semerr.CodeIndexerLaneClosed, "engine is closed", semerr.FieldIndexID(indexID))
	}
	l, ok := p.lanes[indexID]
	if !ok {
		l = NewLane(indexID)
		p.lanes[indexID] = l
	}
	return l, nil
}

// Remove closes and forgets the lane of a deleted index. It must not be
// called from a job running on that lane.
func (p *LanePool) Remove(indexID string) {
	p.mu.Lock()
	l := p.lanes[indexID]
	delete(p.lanes, indexID)
	p.mu.Unlock()

	if l != nil {
		l.Close()
	}
}

// Close closes every lane and rejects later Gets.
func (p *LanePool) Close() {
	p.mu.Lock()
	lanes := p.lanes
	p.lanes = nil
	p.closed = true
	p.mu.Unlock()

	for _, l := range lanes {
		l.Close()
	}
}
