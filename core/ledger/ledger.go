// Package ledger records identifiers that were already acted upon so that
// repeated upstream notifications cause at most one observable effect.
package ledger

import "time"

// Ledger is a set of claimed identifiers. It is not safe for concurrent use;
// the owning engine serialises access on its event loop.
type Ledger struct {
	claims    map[string]time.Time
	retention time.Duration
	now       func() time.Time
}

type Option func(*Ledger)

// WithRetention evicts claims older than d on every TryClaim. Zero keeps
// claims for the lifetime of the ledger.
func WithRetention(d time.Duration) Option {
	return func(l *Ledger) { l.retention = d }
}

func withClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		claims: map[string]time.Time{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryClaim returns true and records id if it was not claimed before. The
// empty id is never claimable.
func (l *Ledger) TryClaim(id string) bool {
	if id == "" {
		return false
	}

	now := l.now()
	l.evict(now)
	if _, ok := l.claims[id]; ok {
		return false
	}

	l.claims[id] = now
	return true
}

func (l *Ledger) Has(id string) bool {
	_, ok := l.claims[id]
	return ok
}

func (l *Ledger) Len() int { return len(l.claims) }

// Reset forgets every claim. Used at session teardown.
func (l *Ledger) Reset() {
	l.claims = map[string]time.Time{}
}

func (l *Ledger) evict(now time.Time) {
	if l.retention <= 0 {
		return
	}

	cutoff := now.Add(-l.retention)
	for id, claimedAt := range l.claims {
		if claimedAt.Before(cutoff) {
			delete(l.claims, id)
		}
	}
}
