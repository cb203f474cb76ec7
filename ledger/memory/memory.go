// Package memory provides an in-process implementation of the ledger
// interface using github.com/hashicorp/golang-lru/v2. It is the default
// ledger for single-process relying parties.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/opwatch/sessioncheck-go/ledger"
)

// DefaultMaxEntries bounds the number of concurrently outstanding challenges.
// One entry per live check session is the expected steady state.
const DefaultMaxEntries = 128

// Option configures the in-memory ledger.
type Option func(*config)

type config struct {
	maxEntries int
	ttl        time.Duration
}

// WithMaxEntries caps the number of outstanding entries. Oldest entries are
// evicted first.
func WithMaxEntries(n int) Option {
	return func(c *config) { c.maxEntries = n }
}

// WithTTL expires outstanding entries after d. A response arriving after its
// entry expired is classified as a failure by the verifier, never accepted.
// Zero means entries only leave via Take, Delete, replacement or eviction.
func WithTTL(d time.Duration) Option {
	return func(c *config) { c.ttl = d }
}

type record struct {
	entry    ledger.Entry
	storedAt time.Time
}

// Ledger implements ledger.Ledger with an LRU-bounded in-memory map.
type Ledger struct {
	mu     sync.Mutex
	cache  *lru.Cache[string, record]
	ttl    time.Duration
	closed bool
}

var _ ledger.Ledger = (*Ledger)(nil)

// New creates an in-memory ledger.
func New(opts ...Option) (*Ledger, error) {
	cfg := &config{maxEntries: DefaultMaxEntries}
	for _, opt := range opts {
		opt(cfg)
	}

	cache, err := lru.New[string, record](cfg.maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create LRU cache: %w", err)
	}

	return &Ledger{cache: cache, ttl: cfg.ttl}, nil
}

// Put records the outstanding entry for checkID, replacing any prior entry.
func (l *Ledger) Put(ctx context.Context, checkID string, e ledger.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ledger.ErrClosed
	}
	l.cache.Add(checkID, record{entry: e, storedAt: time.Now()})
	return nil
}

// Take returns and invalidates the outstanding entry for checkID.
func (l *Ledger) Take(ctx context.Context, checkID string) (*ledger.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ledger.ErrClosed
	}
	rec, ok := l.cache.Get(checkID)
	if !ok {
		return nil, nil
	}
	l.cache.Remove(checkID)
	if l.ttl > 0 && time.Since(rec.storedAt) > l.ttl {
		return nil, nil
	}
	e := rec.entry
	return &e, nil
}

// Delete drops any outstanding entry for checkID.
func (l *Ledger) Delete(ctx context.Context, checkID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ledger.ErrClosed
	}
	l.cache.Remove(checkID)
	return nil
}

// Close purges all entries. Subsequent operations return ledger.ErrClosed.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.cache.Purge()
	return nil
}
