// Package dedup suppresses provider event retransmissions.
//
// A stable signature is computed from (call id, raw status, time bucket); a
// signature seen within the window is a duplicate. The window is
// time-bucketed, not call-state-bucketed: entries expire on their own TTL
// independent of the call lifecycle.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Window tracks event signatures for duplicate suppression.
type Window interface {
	// Observe records sig and reports whether this is its first sighting
	// within the window. A false return means duplicate.
	Observe(ctx context.Context, sig string) (bool, error)
}

// Signature hashes the identifying parts of a provider event. The timestamp
// is quantized to bucket so retransmissions a few seconds apart collapse to
// the same signature.
func Signature(callID, rawStatus string, at time.Time, bucket time.Duration) string {
	if bucket <= 0 {
		bucket = 5 * time.Second
	}
	b := at.UTC().Truncate(bucket)
	h := sha256.New()
	h.Write([]byte(callID))
	h.Write([]byte{0})
	h.Write([]byte(rawStatus))
	h.Write([]byte{0})
	h.Write([]byte(b.Format(time.RFC3339)))
	return hex.EncodeToString(h.Sum(nil))
}

// MemoryWindow is the process-local Window used by single-instance
// deployments and tests. Expired entries are swept lazily on Observe.
type MemoryWindow struct {
	mu   sync.Mutex
	seen map[string]time.Time // signature -> expiry

	ttl   time.Duration
	clock func() time.Time

	// lastSweep bounds the lazy sweep cost; swept at most once per ttl.
	lastSweep time.Time
}

func NewMemoryWindow(ttl time.Duration) *MemoryWindow {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryWindow{
		seen:  map[string]time.Time{},
		ttl:   ttl,
		clock: time.Now,
	}
}

// SetClock makes expiry deterministic in tests.
func (w *MemoryWindow) SetClock(clock func() time.Time) { w.clock = clock }

func (w *MemoryWindow) Observe(ctx context.Context, sig string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock()
	w.sweep(now)

	if exp, ok := w.seen[sig]; ok && now.Before(exp) {
		return false, nil
	}
	w.seen[sig] = now.Add(w.ttl)
	return true, nil
}

// Len returns the number of tracked signatures (expired ones included until
// the next sweep).
func (w *MemoryWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}

func (w *MemoryWindow) sweep(now time.Time) {
	if now.Sub(w.lastSweep) < w.ttl {
		return
	}
	for sig, exp := range w.seen {
		if !now.Before(exp) {
			delete(w.seen, sig)
		}
	}
	w.lastSweep = now
}

var _ Window = (*MemoryWindow)(nil)
