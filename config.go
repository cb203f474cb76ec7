package sessioncheck

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/opwatch/sessioncheck-go/frame"
	"github.com/opwatch/sessioncheck-go/ledger"
	"github.com/opwatch/sessioncheck-go/relay"
	"github.com/opwatch/sessioncheck-go/tokensource"
)

// Mode identifies the verification strategy an instance was constructed
// with. It is fixed at construction and never changes.
type Mode int

const (
	// ModeStandardsBased verifies via a silent authorization round trip
	// (prompt=none) carried inside a hidden execution context.
	ModeStandardsBased Mode = iota

	// ModeTrustedToken verifies via a direct, token-authenticated call to a
	// session-validation endpoint.
	ModeTrustedToken
)

func (m Mode) String() string {
	switch m {
	case ModeStandardsBased:
		return "standards_based"
	case ModeTrustedToken:
		return "trusted_token"
	default:
		return "unknown"
	}
}

// ResponseType selects the silent-flow response shape.
type ResponseType string

const (
	// ResponseTypeIDToken requests a fresh id_token whose nonce and subject
	// are checked against the outstanding ledger entry.
	ResponseTypeIDToken ResponseType = "id_token"

	// ResponseTypeNone requests no token; the provider answering without an
	// error is itself the signal. Requires Config.IDToken as a hint.
	ResponseTypeNone ResponseType = "none"
)

const (
	// DefaultCheckID is used when the caller supplies none. Callers running
	// multiple concurrent instances MUST supply distinct CheckIDs: with the
	// shared default their ledger entries and relay messages cross-talk.
	DefaultCheckID = "sessionCheck"

	// DefaultCooldownPeriod spaces dispatched requests.
	DefaultCooldownPeriod = 5 * time.Second

	// DefaultRedirectPage is the well-known page name resolved against
	// Config.PageURL when no explicit redirect URI is given.
	DefaultRedirectPage = "sessionCheck.html"

	// DefaultScope is requested in the id_token flow.
	DefaultScope = "openid"
)

// Config describes one check session. Exactly one credential set selects the
// mode: supplying an SSO token (or token source) selects ModeTrustedToken
// regardless of other fields; otherwise a client id plus an authorization
// endpoint (or discoverable issuer) selects ModeStandardsBased.
type Config struct {
	// Subject, when set, is the provider subject the session must still
	// belong to. A verified response naming another subject is a failure.
	Subject string

	// CheckID scopes ledger keys and correlates relayed results to this
	// instance. Defaults to DefaultCheckID; see its doc for the
	// multi-instance requirement.
	CheckID string

	// CooldownPeriod is the minimum spacing between dispatched requests.
	// Triggers inside the window are dropped. Defaults to
	// DefaultCooldownPeriod.
	CooldownPeriod time.Duration

	// ClientID of the relying party at the provider (standards-based).
	ClientID string

	// AuthorizationEndpoint of the provider. Optional when Issuer is set.
	AuthorizationEndpoint string

	// Issuer enables discovery of the authorization endpoint (and JWKS URI
	// for strict verification) when AuthorizationEndpoint is empty.
	Issuer string

	// ResponseType defaults to ResponseTypeIDToken.
	ResponseType ResponseType

	// IDToken is sent as id_token_hint. Required iff ResponseType is
	// ResponseTypeNone.
	IDToken string

	// RedirectURI is the absolute callback URL. Defaults to
	// DefaultRedirectPage resolved against PageURL.
	RedirectURI string

	// PageURL is the URL of the page hosting the check. Its origin gates
	// relay-message acceptance and anchors the default redirect URI.
	PageURL string

	// Scope requested in the id_token flow. Defaults to DefaultScope.
	// Ignored for ResponseTypeNone.
	Scope string

	// VerifyIDTokenSignature opts in to verifying the id_token signature
	// against the provider JWKS. Off by default: the token is freshly
	// issued over a transport already trusted for this check.
	VerifyIDTokenSignature bool

	// JWKSURI overrides the discovered JWKS location for strict
	// verification.
	JWKSURI string

	// SSOToken selects ModeTrustedToken when non-empty.
	SSOToken string

	// SSOTokenSource supplies rotating tokens; also selects
	// ModeTrustedToken. Takes precedence over SSOToken.
	SSOTokenSource tokensource.Source

	// SSOTokenHeader names the header carrying the token. Defaults to
	// amclient.DefaultTokenHeader.
	SSOTokenHeader string

	// AMURL is the validation endpoint base (trusted-token mode).
	AMURL string

	// Ledger stores outstanding challenges. Defaults to a per-instance
	// in-memory ledger, closed on Destroy.
	Ledger ledger.Ledger

	// HTTPClient issues silent-flow navigations and validation calls.
	// Defaults to clients without timeouts: a check that never completes
	// never invokes a handler, and callers wanting a deadline supply one.
	HTTPClient *http.Client

	// NewFrame overrides the hidden-context constructor. Intended for
	// tests; see frametest.
	NewFrame func(deliver relay.MessageFunc) (frame.Frame, error)

	// Logger for engine diagnostics. If nil, logs are discarded.
	Logger *slog.Logger
}
