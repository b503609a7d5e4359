package session

import (
	"sort"
	"sync"
	"time"
)

// PendingResend tracks one packet id the node has asked the controller to
// repeat.
type PendingResend struct {
	PacketID      uint32
	Reason        string
	Attempts      int
	FirstAt       time.Time
	LastAttemptAt time.Time
}

// ResendLedger records outstanding resend requests by packet id. The poll
// loop writes it; the admin surface reads it concurrently.
type ResendLedger struct {
	mu    sync.RWMutex
	items map[uint32]PendingResend
	limit int
}

// NewResendLedger keeps at most limit entries, evicting the oldest first.
// A non-positive limit means unbounded.
func NewResendLedger(limit int) *ResendLedger {
	return &ResendLedger{
		items: make(map[uint32]PendingResend),
		limit: limit,
	}
}

// MarkRequested records one more request for packetID and returns the
// updated entry.
func (l *ResendLedger) MarkRequested(packetID uint32, reason string, at time.Time) PendingResend {
	l.mu.Lock()
	defer l.mu.Unlock()
	item, ok := l.items[packetID]
	if !ok {
		l.evictLocked()
		item = PendingResend{PacketID: packetID, FirstAt: at}
	}
	item.Attempts++
	item.Reason = reason
	item.LastAttemptAt = at
	l.items[packetID] = item
	return item
}

// Resolve clears packetID once a valid copy has arrived. It reports whether
// the id was outstanding.
func (l *ResendLedger) Resolve(packetID uint32) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.items[packetID]
	delete(l.items, packetID)
	return ok
}

func (l *ResendLedger) Get(packetID uint32) (PendingResend, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	item, ok := l.items[packetID]
	return item, ok
}

func (l *ResendLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// List returns a snapshot ordered by packet id.
func (l *ResendLedger) List() []PendingResend {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]PendingResend, 0, len(l.items))
	for _, item := range l.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PacketID < out[j].PacketID
	})
	return out
}

func (l *ResendLedger) evictLocked() {
	if l.limit <= 0 || len(l.items) < l.limit {
		return
	}
	var (
		oldestID uint32
		oldestAt time.Time
		found    bool
	)
	for id, item := range l.items {
		if !found || item.FirstAt.Before(oldestAt) || (item.FirstAt.Equal(oldestAt) && id < oldestID) {
			oldestID, oldestAt, found = id, item.FirstAt, true
		}
	}
	delete(l.items, oldestID)
}
