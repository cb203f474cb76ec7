package sessioncheck

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"
	"net/url"
	"strconv"
	"time"

	"github.com/opwatch/sessioncheck-go/frame"
	"github.com/opwatch/sessioncheck-go/internal/logctx"
	"github.com/opwatch/sessioncheck-go/ledger"
	"github.com/opwatch/sessioncheck-go/relay"
)

// TriggerSessionCheck asks the engine to verify the provider session now.
// The call is synchronous and side-effecting: it either dispatches one
// verification request or does nothing. It dispatches only when no dispatch
// has occurred within the cooldown period; triggers inside the window are
// dropped silently, with no queuing and no later self-firing. Completion is
// always asynchronous, delivered through the handler set.
//
// After Destroy, triggering is a logged no-op.
func (c *Checker) TriggerSessionCheck(ctx context.Context) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		c.log.DebugContext(ctx, "trigger.after_destroy", slog.String("check_id", c.checkID))
		return
	}
	now := c.now()
	if c.hasDispatched && now.Sub(c.lastDispatch) < c.cooldown {
		c.mu.Unlock()
		return
	}
	c.hasDispatched = true
	c.lastDispatch = now
	c.requestCheckCount++
	count := c.requestCheckCount
	fr := c.frame
	led := c.ledger
	c.mu.Unlock()

	ctx = logctx.WithCheckData(ctx, &logctx.CheckData{
		CheckID:           c.checkID,
		Mode:              c.mode.String(),
		RequestCheckCount: count,
	})

	switch c.mode {
	case ModeStandardsBased:
		c.dispatchSilent(ctx, fr, led)
	case ModeTrustedToken:
		c.dispatchTrusted(ctx)
	}
}

// dispatchSilent records the outstanding challenge and points the hidden
// context at the composed authorization URL.
func (c *Checker) dispatchSilent(ctx context.Context, fr frame.Frame, led ledger.Ledger) {
	if fr == nil {
		c.log.DebugContext(ctx, "dispatch.frame_released")
		return
	}

	q := url.Values{}
	q.Set("prompt", "none")
	q.Set("client_id", c.clientID)
	q.Set("response_type", string(c.responseType))
	q.Set("redirect_uri", c.redirectURI)
	q.Set("state", c.checkID)
	if c.responseType == ResponseTypeIDToken {
		nonce := newNonce()
		if err := led.Put(ctx, c.checkID, ledger.Entry{Nonce: nonce, ExpectedSubject: c.subject}); err != nil {
			// Without a ledger entry the response could never verify, so
			// report instead of navigating.
			c.log.ErrorContext(ctx, "ledger.put.fail", slog.String("err", err.Error()))
			c.classify(relay.Failed(relay.ReasonLedgerError, c.checkID))
			return
		}
		q.Set("nonce", nonce)
	}
	if c.responseType == ResponseTypeIDToken && c.scope != "" {
		q.Set("scope", c.scope)
	}
	if c.idToken != "" {
		q.Set("id_token_hint", c.idToken)
	}

	dest := *c.authEndpoint
	if dest.RawQuery == "" {
		dest.RawQuery = q.Encode()
	} else {
		dest.RawQuery = dest.RawQuery + "&" + q.Encode()
	}

	c.log.DebugContext(ctx, "dispatch.silent")
	if err := fr.Navigate(ctx, dest.String()); err != nil {
		c.log.ErrorContext(ctx, "dispatch.navigate.fail", slog.String("err", err.Error()))
	}
}

// dispatchTrusted issues the validation call in the background. A call still
// in flight is superseded first, mirroring the silent flow's
// cancel-on-redispatch behavior.
func (c *Checker) dispatchTrusted(ctx context.Context) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	if c.inflight != nil {
		c.inflight()
	}
	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.inflight = cancel
	tokens := c.tokens
	c.mu.Unlock()

	c.log.DebugContext(ctx, "dispatch.trusted")
	go func() {
		defer cancel()
		token, err := tokens.Token(callCtx)
		if err != nil {
			c.log.ErrorContext(callCtx, "trusted.token.fail", slog.String("err", err.Error()))
			c.classify(relay.Failed("sso_token_unavailable", c.checkID))
			return
		}
		info, err := c.am.Validate(callCtx, token)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				// Superseded or destroyed; not a classification.
				return
			}
			c.classify(relay.Failed("invalid_response: "+err.Error(), c.checkID))
			return
		}
		if !info.Valid {
			c.classify(relay.Failed(relay.ReasonInvalidSession, c.checkID))
			return
		}
		if c.subject != "" && info.UID != c.subject {
			c.classify(relay.Failed(relay.ReasonSubjectMismatch, c.checkID))
			return
		}
		claims := map[string]any{"valid": true}
		if info.UID != "" {
			claims["uid"] = info.UID
			claims["sub"] = info.UID
		}
		if info.Realm != "" {
			claims["realm"] = info.Realm
		}
		c.classify(relay.Succeeded(claims, c.checkID))
	}()
}

// newNonce returns a fresh numeric challenge.
func newNonce() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return n.String()
}
