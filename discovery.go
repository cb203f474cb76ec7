package sessioncheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

type opMetadata struct {
	authorizationEndpoint string
	jwksURI               string
}

// discoverOP resolves the provider endpoints this engine needs from the
// issuer's discovery document.
func discoverOP(ctx context.Context, issuer string, hc *http.Client) (*opMetadata, error) {
	if hc != nil {
		ctx = oidc.ClientContext(ctx, hc)
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("sessioncheck: oidc discovery failed: %w", err)
	}
	var meta struct {
		Authorization string `json:"authorization_endpoint"`
		JwksURI       string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("sessioncheck: invalid discovery metadata: %w", err)
	}
	if meta.Authorization == "" {
		return nil, errors.New("sessioncheck: discovery metadata lacks authorization_endpoint")
	}
	return &opMetadata{
		authorizationEndpoint: meta.Authorization,
		jwksURI:               meta.JwksURI,
	}, nil
}

// jwksKeyfunc builds an auto-refreshing JWKS keyfunc for strict id_token
// verification.
func jwksKeyfunc(ctx context.Context, jwksURI string) (jwt.Keyfunc, error) {
	if jwksURI == "" {
		return nil, errors.New("sessioncheck: signature verification requires a JWKS URI or discoverable issuer")
	}
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("sessioncheck: jwks init failed: %w", err)
	}
	return kf.Keyfunc, nil
}
