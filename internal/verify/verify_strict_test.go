package verify

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/opwatch/sessioncheck-go/ledger"
	"github.com/opwatch/sessioncheck-go/relay"
)

func genRSA(t *testing.T) (*rsa.PrivateKey, string, []byte) {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	kid := "test-key"
	jwk := jose.JSONWebKey{Key: &pk.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"}
	set := struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{jwk}}
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return pk, kid, b
}

func signRS256(t *testing.T, pk *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func newJWKSKeyfunc(t *testing.T, keysJSON []byte) jwt.Keyfunc {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(keysJSON)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{srv.URL})
	if err != nil {
		t.Fatalf("keyfunc: %v", err)
	}
	return kf.Keyfunc
}

func TestClassify_StrictModeAcceptsSignedToken(t *testing.T) {
	ctx := context.Background()
	pk, kid, jwks := genRSA(t)
	kf := newJWKSKeyfunc(t, jwks)

	led := newLedger(t)
	if err := led.Put(ctx, "chk-1", ledger.Entry{Nonce: "42", ExpectedSubject: "alice"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	tok := signRS256(t, pk, kid, jwt.MapClaims{"sub": "alice", "nonce": 42})
	msg := Classify(ctx, callbackURL(t, "id_token="+tok+"&state=chk-1"), led, &Options{Keyfunc: kf})

	if msg.Kind != relay.KindSucceeded {
		t.Fatalf("kind = %q (reason %q), want success", msg.Kind, msg.Reason)
	}
}

func TestClassify_StrictModeRejectsForgedToken(t *testing.T) {
	ctx := context.Background()
	_, _, jwks := genRSA(t)
	kf := newJWKSKeyfunc(t, jwks)

	led := newLedger(t)
	if err := led.Put(ctx, "chk-1", ledger.Entry{Nonce: "42"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Signed with a key the JWKS does not know.
	other, otherKid, _ := genRSA(t)
	tok := signRS256(t, other, otherKid, jwt.MapClaims{"nonce": 42})
	msg := Classify(ctx, callbackURL(t, "id_token="+tok+"&state=chk-1"), led, &Options{Keyfunc: kf})

	if msg.Kind != relay.KindFailed || msg.Reason != relay.ReasonInvalidIDToken {
		t.Fatalf("got (%q, %q), want failure invalid_id_token", msg.Kind, msg.Reason)
	}
}
