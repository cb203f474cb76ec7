// Package tokensource supplies SSO tokens to the trusted-token verification
// path. Long-running relying parties can hot-reload a rotated token from a
// file instead of restarting.
package tokensource

import "context"

// Source yields the current SSO token.
type Source interface {
	// Token returns the token to authenticate the next validation call.
	Token(ctx context.Context) (string, error)

	// Close releases resources held by the source.
	Close() error
}

type staticSource string

// Static returns a source that always yields the given token.
func Static(token string) Source { return staticSource(token) }

func (s staticSource) Token(ctx context.Context) (string, error) { return string(s), nil }
func (s staticSource) Close() error                              { return nil }
