// Package verify implements the response-verification step of the silent
// check flow: it maps the callback URL the provider redirected to into a
// normalized relay message, binding the response to its originating dispatch
// through the ledger.
package verify

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opwatch/sessioncheck-go/ledger"
	"github.com/opwatch/sessioncheck-go/relay"
)

// Options tune verification behavior.
type Options struct {
	// Keyfunc, when non-nil, enables signature verification of the id_token
	// against the provider's JWKS. The default is decode-only: the token is
	// freshly issued over a transport already trusted for this purpose.
	Keyfunc jwt.Keyfunc

	// AllowedAlgs restricts signing algorithms when Keyfunc is set.
	AllowedAlgs []string
}

// Classify maps a callback URL to a normalized check result. The rules, in
// order: an id_token parameter is verified against the outstanding ledger
// entry (nonce binding, then expected subject); an error parameter becomes a
// failure with the provider's error code as reason; a bare callback (the
// response_type=none flow) is a success carrying no claims.
func Classify(ctx context.Context, callback *url.URL, led ledger.Ledger, opts *Options) relay.Message {
	params := mergeParams(callback.EscapedFragment(), callback.RawQuery)
	checkID := params["state"]

	if tok, ok := params["id_token"]; ok {
		claims, err := decodeClaims(tok, opts)
		if err != nil {
			return relay.Failed(relay.ReasonInvalidIDToken, checkID)
		}
		entry, err := led.Take(ctx, checkID)
		if err != nil {
			return relay.Failed(relay.ReasonLedgerError, checkID)
		}
		// A missing or already-consumed entry means the response cannot be
		// bound to any outstanding dispatch.
		if entry == nil || canonical(claims["nonce"]) != entry.Nonce {
			return relay.Failed(relay.ReasonNonceMismatch, checkID)
		}
		if entry.ExpectedSubject != "" {
			sub, _ := claims["sub"].(string)
			if sub != entry.ExpectedSubject {
				return relay.Failed(relay.ReasonSubjectMismatch, checkID)
			}
		}
		return relay.Succeeded(claims, checkID)
	}

	if errCode, ok := params["error"]; ok {
		return relay.Failed(errCode, checkID)
	}

	return relay.Succeeded(nil, checkID)
}

// mergeParams flattens the URL fragment and query string into one parameter
// set. Both inputs must be in escaped form so every parameter is decoded
// exactly once. Entries missing either key or value are dropped, not decoded.
func mergeParams(parts ...string) map[string]string {
	out := make(map[string]string)
	for _, part := range parts {
		for _, pair := range strings.Split(part, "&") {
			k, v, ok := strings.Cut(pair, "=")
			if !ok || k == "" || v == "" {
				continue
			}
			if dk, err := url.QueryUnescape(k); err == nil {
				k = dk
			}
			if dv, err := url.QueryUnescape(v); err == nil {
				v = dv
			}
			out[k] = v
		}
	}
	return out
}

// decodeClaims extracts the claims segment of a compact-serialized token.
// Without a keyfunc this is decode-only; with one the signature is verified.
func decodeClaims(tok string, opts *Options) (map[string]any, error) {
	claims := jwt.MapClaims{}
	if opts != nil && opts.Keyfunc != nil {
		algs := opts.AllowedAlgs
		if len(algs) == 0 {
			algs = []string{"RS256"}
		}
		parser := jwt.NewParser(jwt.WithValidMethods(algs))
		if _, err := parser.ParseWithClaims(tok, claims, opts.Keyfunc); err != nil {
			return nil, fmt.Errorf("verify id_token: %w", err)
		}
		return claims, nil
	}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return nil, fmt.Errorf("decode id_token claims: %w", err)
	}
	return claims, nil
}

// canonical renders a claim value for comparison with a stored nonce. JSON
// numbers arrive as float64 and must compare equal to their integer form.
func canonical(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
