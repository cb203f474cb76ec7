// Package ledger defines the store of outstanding challenges for check
// sessions. One entry exists per check id: it is written immediately before a
// verification request is dispatched and consumed exactly once when the
// response is verified.
package ledger

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a ledger that has been closed.
var ErrClosed = errors.New("ledger: closed")

// Entry is the outstanding challenge for one check session.
type Entry struct {
	// Nonce is the challenge value echoed back in the response claims.
	Nonce string `json:"nonce"`

	// ExpectedSubject, when non-empty, is the subject the response claims
	// must carry for the check to succeed.
	ExpectedSubject string `json:"expectedSubject,omitempty"`
}

// Ledger is the injected nonce/subject store. Implementations must be safe
// for concurrent use. Keys are caller-supplied check ids; callers running
// multiple concurrent check sessions must use distinct ids or entries will
// overwrite each other.
type Ledger interface {
	// Put records the outstanding entry for checkID, replacing any prior
	// entry. A redispatch therefore invalidates the previous challenge.
	Put(ctx context.Context, checkID string, e Entry) error

	// Take returns the outstanding entry for checkID and invalidates it.
	// Returns nil when no entry is outstanding; each challenge can be
	// consumed at most once.
	Take(ctx context.Context, checkID string) (*Entry, error)

	// Delete drops any outstanding entry for checkID.
	Delete(ctx context.Context, checkID string) error

	// Close releases resources held by the ledger.
	Close() error
}
