// Package httpframe is the headless stand-in for a hidden browser frame: it
// performs the silent authorization request with an HTTP client, follows the
// provider's redirect chain until it reaches the configured redirect target,
// verifies the callback and relays the normalized result.
package httpframe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/opwatch/sessioncheck-go/frame"
	"github.com/opwatch/sessioncheck-go/internal/logctx"
	"github.com/opwatch/sessioncheck-go/internal/verify"
	"github.com/opwatch/sessioncheck-go/ledger"
	"github.com/opwatch/sessioncheck-go/relay"
)

// DefaultMaxHops caps the length of the redirect chain a navigation follows
// before giving up.
const DefaultMaxHops = 10

// Config for an HTTP-backed frame.
type Config struct {
	// RedirectURI is the absolute callback URL the provider redirects to.
	// The frame's origin is derived from it.
	RedirectURI string

	// PageOrigin is the owning page's origin. If it differs from the
	// redirect URI's origin the frame aborts silently: cross-origin hosting
	// is a misconfiguration, not a session-validity signal. Empty defaults
	// to the redirect URI's origin.
	PageOrigin string

	// Ledger resolves outstanding challenges during verification.
	Ledger ledger.Ledger

	// Client issues the authorization requests. It must not follow
	// redirects on its own; the frame inspects each hop. If nil, a client
	// is derived from http.DefaultTransport. No timeout is applied: a
	// navigation that never settles simply never delivers.
	Client *http.Client

	// Keyfunc, when non-nil, enables id_token signature verification
	// against the provider's JWKS.
	Keyfunc jwt.Keyfunc

	// AllowedAlgs restricts signing algorithms when Keyfunc is set.
	AllowedAlgs []string

	// MaxHops caps the redirect chain length. Defaults to DefaultMaxHops.
	MaxHops int

	// Logger for frame diagnostics. If nil, logs are discarded.
	Logger *slog.Logger
}

// Frame implements frame.Frame over plain HTTP.
type Frame struct {
	client      *http.Client
	redirectURI *url.URL
	origin      string
	pageOrigin  string
	led         ledger.Ledger
	verifyOpts  *verify.Options
	maxHops     int
	log         *slog.Logger
	deliver     relay.MessageFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// New creates a frame that delivers results to deliver.
func New(cfg Config, deliver relay.MessageFunc) (*Frame, error) {
	if deliver == nil {
		return nil, errors.New("httpframe: deliver func is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("httpframe: ledger is required")
	}
	ru, err := url.Parse(cfg.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("httpframe: parse redirect URI: %w", err)
	}
	origin := relay.OriginOf(ru)
	if origin == "" {
		return nil, fmt.Errorf("httpframe: redirect URI %q is not absolute", cfg.RedirectURI)
	}
	pageOrigin := cfg.PageOrigin
	if pageOrigin == "" {
		pageOrigin = origin
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport}
	}
	// The frame walks the redirect chain itself so that the hop reaching
	// the redirect URI is observed rather than followed.
	client = &http.Client{
		Transport: client.Transport,
		Jar:       client.Jar,
		Timeout:   client.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	maxHops := cfg.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	var opts *verify.Options
	if cfg.Keyfunc != nil {
		opts = &verify.Options{Keyfunc: cfg.Keyfunc, AllowedAlgs: cfg.AllowedAlgs}
	}

	return &Frame{
		client:      client,
		redirectURI: ru,
		origin:      origin,
		pageOrigin:  pageOrigin,
		led:         cfg.Ledger,
		verifyOpts:  opts,
		maxHops:     maxHops,
		log:         log,
		deliver:     deliver,
	}, nil
}

var _ frame.Frame = (*Frame)(nil)

// Origin returns the frame's origin, derived from the redirect URI.
func (f *Frame) Origin() string { return f.origin }

// Navigate starts the silent round trip. A navigation in flight is cancelled
// first: re-pointing the same frame supersedes the earlier request, so a
// stale response can never resolve after a newer dispatch.
func (f *Frame) Navigate(ctx context.Context, rawURL string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		f.log.DebugContext(ctx, "frame.navigate.closed")
		return nil
	}
	if f.cancel != nil {
		f.cancel()
	}
	// Completion outlives the trigger call; only Close or a newer Navigate
	// cancels it.
	navCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.cancel = cancel
	f.mu.Unlock()

	navCtx = logctx.WithNavData(navCtx, &logctx.NavData{NavID: uuid.NewString()})
	go f.run(navCtx, rawURL)
	return nil
}

func (f *Frame) run(ctx context.Context, rawURL string) {
	if f.origin != f.pageOrigin {
		f.log.WarnContext(ctx, "frame.origin.mismatch",
			slog.String("frame_origin", f.origin),
			slog.String("page_origin", f.pageOrigin))
		return
	}

	current := rawURL
	for hop := 0; hop < f.maxHops; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			f.log.DebugContext(ctx, "frame.navigate.bad_url", slog.String("err", err.Error()))
			return
		}
		res, err := f.client.Do(req)
		if err != nil {
			// Includes cancellation by a superseding navigation or Close.
			f.log.DebugContext(ctx, "frame.navigate.fail", slog.String("err", err.Error()))
			return
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		_ = res.Body.Close()

		if res.StatusCode < 300 || res.StatusCode > 399 {
			f.log.DebugContext(ctx, "frame.navigate.settled", slog.Int("status", res.StatusCode))
			return
		}
		loc := res.Header.Get("Location")
		if loc == "" {
			f.log.DebugContext(ctx, "frame.navigate.redirect_without_location")
			return
		}
		next, err := res.Request.URL.Parse(loc)
		if err != nil {
			f.log.DebugContext(ctx, "frame.navigate.bad_location", slog.String("err", err.Error()))
			return
		}

		if f.isCallback(next) {
			msg := verify.Classify(ctx, next, f.led, f.verifyOpts)
			f.post(ctx, relay.Envelope{
				Message:      msg,
				Origin:       f.origin,
				TargetOrigin: f.pageOrigin,
			})
			return
		}
		current = next.String()
	}
	f.log.DebugContext(ctx, "frame.navigate.hops_exhausted")
}

// isCallback reports whether u lands on the configured redirect target.
func (f *Frame) isCallback(u *url.URL) bool {
	return relay.OriginOf(u) == f.origin && u.Path == f.redirectURI.Path
}

func (f *Frame) post(ctx context.Context, env relay.Envelope) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return
	}
	f.log.DebugContext(ctx, "frame.relay",
		slog.String("message", env.Kind),
		slog.String("check_id", env.CheckID))
	f.deliver(env)
}

// Close cancels any in-flight navigation and stops delivery. Idempotent.
func (f *Frame) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	return nil
}
