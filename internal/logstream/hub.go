// Package logstream is the per-scan log channel: every entry is written
// durably through the store and then fanned out to the scan's live
// subscribers. Delivery to subscribers is at-most-once; the durable history
// is the reconciliation mechanism for anything a slow subscriber missed.
package logstream

import (
	"context"
	"sync"

	"github.com/breakingcid/scand/internal/logging"
	"github.com/breakingcid/scand/internal/model"
)

const subscriberBuffer = 32

// Appender is the durable half of the channel. *store.Store satisfies it.
type Appender interface {
	AppendLog(ctx context.Context, scanID int64, message string, level model.LogLevel) (*model.LogEntry, error)
	LogsByScan(ctx context.Context, scanID int64) ([]model.LogEntry, error)
}

// Subscription is one live observer of a scan's log stream. Entries arrive
// on C from the moment of subscription forward; history is not replayed.
type Subscription struct {
	C      <-chan model.LogEntry
	ch     chan model.LogEntry
	scanID int64
	hub    *Hub
	once   sync.Once
}

// Close unsubscribes immediately. Safe to call more than once; publishers
// are never blocked by a closed subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s.scanID, s)
		close(s.ch)
	})
}

// Hub owns the subscriber registry, keyed by scan id.
type Hub struct {
	appender Appender
	logger   logging.Logger

	mu   sync.Mutex
	subs map[int64]map[*Subscription]struct{}
}

// NewHub builds a Hub over a durable appender.
func NewHub(appender Appender, logger logging.Logger) *Hub {
	return &Hub{
		appender: appender,
		logger:   logger,
		subs:     make(map[int64]map[*Subscription]struct{}),
	}
}

// Append durably writes one entry and publishes it to the scan's live
// subscribers. The durable write happens first; an entry is never announced
// that the history cannot produce.
func (h *Hub) Append(ctx context.Context, scanID int64, message string, level model.LogLevel) (*model.LogEntry, error) {
	entry, err := h.appender.AppendLog(ctx, scanID, message, level)
	if err != nil {
		return nil, err
	}
	h.publish(scanID, *entry)
	return entry, nil
}

// Subscribe registers a live observer for one scan's entries.
func (h *Hub) Subscribe(scanID int64) *Subscription {
	ch := make(chan model.LogEntry, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, scanID: scanID, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[scanID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[scanID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// History returns the full persisted log history for a scan, for clients
// that connect after entries were already produced.
func (h *Hub) History(ctx context.Context, scanID int64) ([]model.LogEntry, error) {
	return h.appender.LogsByScan(ctx, scanID)
}

// Subscribers reports the live subscriber count for a scan.
func (h *Hub) Subscribers(scanID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[scanID])
}

func (h *Hub) publish(scanID int64, entry model.LogEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[scanID] {
		// Non-blocking send; a full subscriber drops the entry rather than
		// stalling the publisher.
		select {
		case sub.ch <- entry:
		default:
			h.logger.Debug("dropped log entry for slow subscriber",
				logging.Field{Key: "scan_id", Value: scanID})
		}
	}
}

func (h *Hub) remove(scanID int64, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[scanID]
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, scanID)
	}
}
