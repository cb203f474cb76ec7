// Package frame abstracts the hidden execution context that carries a silent
// authorization round trip on behalf of exactly one check session.
package frame

import "context"

// Frame is an opaque child context owned by a single check session. Results
// are delivered to the relay.MessageFunc the frame was constructed with.
type Frame interface {
	// Navigate points the frame at the given URL. A later Navigate
	// supersedes an earlier one that has not completed. After Close,
	// Navigate is a no-op.
	Navigate(ctx context.Context, rawURL string) error

	// Origin is the frame's own origin, derived from its redirect target.
	Origin() string

	// Close releases the frame and cancels any in-flight navigation.
	// Idempotent. A closed frame never delivers another message.
	Close() error
}
