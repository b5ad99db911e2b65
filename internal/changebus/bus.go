// Package changebus fans project changes out to in-process subscribers.
// Every subscription owns a buffered channel; a subscriber that falls behind
// loses changes rather than stalling the broadcaster.
package changebus

import (
	"context"
	"sync"

	"modsync/internal/logger"
	"modsync/internal/model"
	"modsync/internal/syncerr"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultBuffer = 64

// Persister stores changes durably. Failures never block local delivery.
type Persister interface {
	PersistChange(ctx context.Context, change model.ProjectChange) error
}

type Subscription struct {
	ID        string
	ProjectID string
	Filters   *model.ChangeFilters

	ch chan model.ProjectChange
}

// Changes is closed when the subscription is removed.
func (s *Subscription) Changes() <-chan model.ProjectChange {
	return s.ch
}

type Bus struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	persist Persister
	buffer  int
	closed  bool
}

// New returns a bus. persist may be nil.
func New(persist Persister, buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	return &Bus{
		subs:    make(map[string]*Subscription),
		persist: persist,
		buffer:  buffer,
	}
}

func (b *Bus) Subscribe(projectID string, filters *model.ChangeFilters) (*Subscription, error) {
	if projectID == "" {
		return nil, syncerr.New(syncerr.KindInvalidArgument, "project id is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, syncerr.New(syncerr.KindNotInitialized, "change bus is closed")
	}

	sub := &Subscription{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Filters:   filters,
		ch:        make(chan model.ProjectChange, b.buffer),
	}
	b.subs[sub.ID] = sub

	logger.Log.Debug("subscribed",
		zap.String("subscription_id", sub.ID),
		zap.String("project", projectID))

	return sub, nil
}

func (b *Bus) Get(id string) (*Subscription, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sub, ok := b.subs[id]
	return sub, ok
}

func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return syncerr.New(syncerr.KindNotFound, "subscription %s not found", id)
	}

	delete(b.subs, id)
	close(sub.ch)
	return nil
}

// UnsubscribeProject removes every subscription of projectID.
func (b *Bus) UnsubscribeProject(projectID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		if sub.ProjectID == projectID {
			delete(b.subs, id)
			close(sub.ch)
		}
	}
}

// Broadcast delivers change to every matching live subscription, then
// persists it. It returns the number of subscriptions that received it.
func (b *Bus) Broadcast(ctx context.Context, change model.ProjectChange) int {
	delivered := b.Deliver(change)

	if b.persist != nil {
		if err := b.persist.PersistChange(ctx, change); err != nil {
			logger.Log.Warn("failed to persist change",
				zap.String("project", change.ProjectID),
				zap.String("path", change.Path),
				zap.Error(err))
		}
	}

	return delivered
}

// Deliver fans change out to matching subscribers without persisting it,
// for changes that were already persisted elsewhere.
func (b *Bus) Deliver(change model.ProjectChange) int {
	delivered := 0

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.ProjectID != change.ProjectID || !sub.Filters.Match(change) {
			continue
		}

		select {
		case sub.ch <- change:
			delivered++
		default:
			logger.Log.Warn("subscriber is full, change dropped",
				zap.String("subscription_id", sub.ID),
				zap.String("path", change.Path))
		}
	}

	return delivered
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
	b.closed = true
}
