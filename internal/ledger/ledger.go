// Package ledger tracks which lead identities have already completed the
// pipeline. The in-memory set is seeded from the store at startup and the
// full set is flushed back after every insert.
package ledger

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// KeyFunc derives the identity key of a lead.
type KeyFunc func(model.Lead) string

// KeyConcat is the raw name+company+email concatenation.
func KeyConcat(l model.Lead) string { return l.IdentityKey() }

// KeyStructured joins the fields with a separator so distinct tuples never collide.
func KeyStructured(l model.Lead) string { return l.StructuredKey() }

// Persister is the slice of the store the ledger needs.
type Persister interface {
	LoadProcessed(ctx context.Context) ([]string, error)
	SaveProcessed(ctx context.Context, keys []string) error
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithKeyFunc overrides the identity key derivation.
func WithKeyFunc(fn KeyFunc) Option {
	return func(l *Ledger) {
		if fn != nil {
			l.key = fn
		}
	}
}

// Ledger is the dedup registry. Safe for concurrent use.
type Ledger struct {
	mu    sync.RWMutex
	store Persister
	key   KeyFunc
	seen  map[string]struct{}
	order []string
}

// Load builds a ledger seeded from the persisted key list. Duplicate keys in
// storage collapse to one.
func Load(ctx context.Context, store Persister, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store: store,
		key:   KeyConcat,
		seen:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	keys, err := store.LoadProcessed(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: load")
	}
	for _, k := range keys {
		l.insert(k)
	}
	zap.L().Debug("ledger: loaded", zap.Int("keys", len(l.order)))
	return l, nil
}

// Key returns the identity key this ledger uses for lead.
func (l *Ledger) Key(lead model.Lead) string {
	return l.key(lead)
}

// IsProcessed reports whether lead's identity is already recorded.
func (l *Ledger) IsProcessed(lead model.Lead) bool {
	k := l.key(lead)
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.seen[k]
	return ok
}

// MarkProcessed records lead and flushes the full set. Marking an existing
// identity is a no-op and does not write.
func (l *Ledger) MarkProcessed(ctx context.Context, lead model.Lead) error {
	k := l.key(lead)

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.insert(k) {
		return nil
	}
	snapshot := make([]string, len(l.order))
	copy(snapshot, l.order)
	if err := l.store.SaveProcessed(ctx, snapshot); err != nil {
		return eris.Wrapf(err, "ledger: flush after marking %s", lead.Email)
	}
	return nil
}

// Len returns the number of recorded identities.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

func (l *Ledger) insert(k string) bool {
	if _, ok := l.seen[k]; ok {
		return false
	}
	l.seen[k] = struct{}{}
	l.order = append(l.order, k)
	return true
}
