// Package sessioncheck periodically re-verifies, without user interaction,
// that an identity provider's session is still valid and still belongs to
// the same subject, and reports divergence to caller-supplied handlers.
//
// The engine never decides when to check: callers drive it through
// TriggerSessionCheck, which a per-instance cooldown gate collapses to at
// most one dispatched request per window. Completion is asynchronous and is
// delivered by invoking the Handler passed to New; the engine itself never
// retries and never times out.
package sessioncheck

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opwatch/sessioncheck-go/amclient"
	"github.com/opwatch/sessioncheck-go/frame"
	"github.com/opwatch/sessioncheck-go/frame/httpframe"
	"github.com/opwatch/sessioncheck-go/internal/logctx"
	"github.com/opwatch/sessioncheck-go/ledger"
	ledgermem "github.com/opwatch/sessioncheck-go/ledger/memory"
	"github.com/opwatch/sessioncheck-go/relay"
	"github.com/opwatch/sessioncheck-go/tokensource"
)

// Checker is one check session. Construct with New, drive with
// TriggerSessionCheck, release with Destroy.
type Checker struct {
	mode       Mode
	checkID    string
	subject    string
	cooldown   time.Duration
	handler    Handler
	log        *slog.Logger
	pageOrigin string

	// standards-based
	authEndpoint *url.URL
	clientID     string
	responseType ResponseType
	idToken      string
	redirectURI  string
	scope        string
	ownLedger    bool

	// trusted-token
	am        *amclient.Client
	ownTokens bool

	now func() time.Time

	mu        sync.Mutex
	destroyed bool
	frame     frame.Frame
	ledger    ledger.Ledger
	tokens    tokensource.Source
	inflight  context.CancelFunc

	hasDispatched     bool
	lastDispatch      time.Time
	requestCheckCount int
	hasSucceededOnce  bool
}

// New validates cfg, selects the verification mode and returns a ready
// Checker. Configuration errors are fatal and returned immediately; they are
// programmer errors, not runtime conditions.
func New(ctx context.Context, cfg Config, handler Handler) (*Checker, error) {
	if handler == nil {
		return nil, ErrHandlerRequired
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = slog.New(logctx.Handler{Handler: log.Handler()})

	c := &Checker{
		checkID:  cfg.CheckID,
		subject:  cfg.Subject,
		cooldown: cfg.CooldownPeriod,
		handler:  handler,
		log:      log,
		now:      time.Now,
	}
	if c.checkID == "" {
		c.checkID = DefaultCheckID
	}
	if c.cooldown <= 0 {
		c.cooldown = DefaultCooldownPeriod
	}

	// Presence of a session token forces trusted-token mode regardless of
	// any standards-based fields also present.
	if cfg.SSOToken != "" || cfg.SSOTokenSource != nil {
		if err := c.initTrusted(cfg); err != nil {
			return nil, err
		}
		return c, nil
	}
	if err := c.initStandardsBased(ctx, cfg); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Checker) initTrusted(cfg Config) error {
	c.mode = ModeTrustedToken
	if cfg.AMURL == "" {
		return ErrValidationEndpointRequired
	}
	am, err := amclient.New(amclient.Config{
		BaseURL:     cfg.AMURL,
		TokenHeader: cfg.SSOTokenHeader,
		HTTPClient:  cfg.HTTPClient,
	})
	if err != nil {
		return err
	}
	c.am = am
	if cfg.SSOTokenSource != nil {
		c.tokens = cfg.SSOTokenSource
	} else {
		c.tokens = tokensource.Static(cfg.SSOToken)
		c.ownTokens = true
	}
	return nil
}

func (c *Checker) initStandardsBased(ctx context.Context, cfg Config) error {
	c.mode = ModeStandardsBased
	if cfg.ClientID == "" {
		return ErrClientIDRequired
	}
	c.clientID = cfg.ClientID

	c.responseType = cfg.ResponseType
	if c.responseType == "" {
		c.responseType = ResponseTypeIDToken
	}
	switch c.responseType {
	case ResponseTypeIDToken:
		c.scope = cfg.Scope
		if c.scope == "" {
			c.scope = DefaultScope
		}
	case ResponseTypeNone:
		if cfg.IDToken == "" {
			return ErrIDTokenRequired
		}
		// Scope is only meaningful when a token is requested.
	default:
		return fmt.Errorf("%w: %q", ErrInvalidResponseType, cfg.ResponseType)
	}
	c.idToken = cfg.IDToken

	endpoint := cfg.AuthorizationEndpoint
	jwksURI := cfg.JWKSURI
	if endpoint == "" {
		if cfg.Issuer == "" {
			return ErrAuthorizationEndpointRequired
		}
		disc, err := discoverOP(ctx, cfg.Issuer, cfg.HTTPClient)
		if err != nil {
			return err
		}
		endpoint = disc.authorizationEndpoint
		if jwksURI == "" {
			jwksURI = disc.jwksURI
		}
	}
	au, err := url.Parse(endpoint)
	if err != nil || !au.IsAbs() {
		return fmt.Errorf("sessioncheck: invalid authorization endpoint %q", endpoint)
	}
	c.authEndpoint = au

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		if cfg.PageURL == "" {
			return ErrRedirectURIRequired
		}
		base, err := url.Parse(cfg.PageURL)
		if err != nil || !base.IsAbs() {
			return fmt.Errorf("sessioncheck: invalid page URL %q", cfg.PageURL)
		}
		ref, err := base.Parse(DefaultRedirectPage)
		if err != nil {
			return fmt.Errorf("sessioncheck: resolve redirect page: %w", err)
		}
		redirectURI = ref.String()
	}
	ru, err := url.Parse(redirectURI)
	if err != nil || !ru.IsAbs() {
		return fmt.Errorf("sessioncheck: invalid redirect URI %q", redirectURI)
	}
	c.redirectURI = ru.String()

	c.pageOrigin = relay.OriginOf(ru)
	if cfg.PageURL != "" {
		if pu, err := url.Parse(cfg.PageURL); err == nil {
			if o := relay.OriginOf(pu); o != "" {
				c.pageOrigin = o
			}
		}
	}

	c.ledger = cfg.Ledger
	if c.ledger == nil {
		led, err := ledgermem.New()
		if err != nil {
			return err
		}
		c.ledger = led
		c.ownLedger = true
	}

	var kf jwt.Keyfunc
	if cfg.VerifyIDTokenSignature {
		kf, err = jwksKeyfunc(ctx, jwksURI)
		if err != nil {
			return err
		}
	}

	newFrame := cfg.NewFrame
	if newFrame == nil {
		newFrame = func(deliver relay.MessageFunc) (frame.Frame, error) {
			return httpframe.New(httpframe.Config{
				RedirectURI: c.redirectURI,
				PageOrigin:  c.pageOrigin,
				Ledger:      c.ledger,
				Client:      cfg.HTTPClient,
				Keyfunc:     kf,
				Logger:      c.log,
			}, c.handleRelay)
		}
	}
	fr, err := newFrame(c.handleRelay)
	if err != nil {
		return err
	}
	c.frame = fr
	return nil
}

// Mode returns the verification strategy selected at construction.
func (c *Checker) Mode() Mode { return c.mode }

// CheckID returns this instance's correlation id.
func (c *Checker) CheckID() string { return c.checkID }

// RequestCheckCount returns the number of requests dispatched so far.
// Triggers suppressed by the cooldown gate do not count.
func (c *Checker) RequestCheckCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestCheckCount
}

// handleRelay receives envelopes from the hidden context. Messages for
// another instance or from another origin are discarded without invoking any
// handler: they are not a session-validity signal.
func (c *Checker) handleRelay(env relay.Envelope) {
	if env.CheckID != c.checkID {
		c.log.Debug("relay.discard.check_id",
			slog.String("got", env.CheckID),
			slog.String("want", c.checkID))
		return
	}
	if env.Origin != c.pageOrigin {
		c.log.Debug("relay.discard.origin", slog.String("origin", env.Origin))
		return
	}
	if env.TargetOrigin != "" && env.TargetOrigin != c.pageOrigin {
		c.log.Debug("relay.discard.target_origin", slog.String("target", env.TargetOrigin))
		return
	}
	c.classify(env.Message)
}

// classify applies first-success-only semantics and invokes the caller's
// handler set. It is the single funnel for both verification strategies.
func (c *Checker) classify(msg relay.Message) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	count := c.requestCheckCount
	firstSuccess := false
	if msg.Kind == relay.KindSucceeded && !c.hasSucceededOnce {
		c.hasSucceededOnce = true
		firstSuccess = true
	}
	c.mu.Unlock()

	switch msg.Kind {
	case relay.KindFailed:
		c.log.Debug("check.failed",
			slog.String("reason", msg.Reason),
			slog.Int("request_check_count", count))
		c.handler.InvalidSession(msg.Reason, count)
	case relay.KindSucceeded:
		c.log.Debug("check.succeeded", slog.Int("request_check_count", count))
		if msg.Claims != nil {
			if ch, ok := c.handler.(ClaimsHandler); ok {
				ch.SessionClaims(msg.Claims, count)
			}
		}
		if firstSuccess {
			if ih, ok := c.handler.(InitialSuccessHandler); ok {
				ih.InitialSessionSuccess()
			}
		}
	}
}

// Destroy releases the hidden context, cancels any in-flight validation
// call, drops this instance's ledger entry and nulls the internal handles so
// later triggers are no-ops. Idempotent.
func (c *Checker) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	fr := c.frame
	c.frame = nil
	inflight := c.inflight
	c.inflight = nil
	led := c.ledger
	c.ledger = nil
	toks := c.tokens
	c.tokens = nil
	c.mu.Unlock()

	if inflight != nil {
		inflight()
	}
	if fr != nil {
		_ = fr.Close()
	}
	if led != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := led.Delete(ctx, c.checkID); err != nil {
			c.log.Debug("destroy.ledger.delete.fail", slog.String("err", err.Error()))
		}
		cancel()
		if c.ownLedger {
			_ = led.Close()
		}
	}
	if toks != nil && c.ownTokens {
		_ = toks.Close()
	}
	c.log.Debug("sessioncheck.destroyed", slog.String("check_id", c.checkID))
}
