// Package amclient issues direct session-validation calls against an access
// management server, authenticating with a privileged SSO token carried in a
// custom header. This is the non-redirect verification path for deployments
// that trust the relying party with a session token.
package amclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/elnormous/contenttype"
)

// DefaultTokenHeader is the conventional SSO token header name.
const DefaultTokenHeader = "iPlanetDirectoryPro"

// acceptAPIVersion pins the sessions resource contract.
const acceptAPIVersion = "resource=2.1, protocol=1.0"

var jsonMediaType = contenttype.NewMediaType("application/json")

// ErrUnexpectedStatus indicates the server answered with a non-2xx status.
var ErrUnexpectedStatus = errors.New("amclient: unexpected response status")

// Config for a validation client.
type Config struct {
	// BaseURL is the server base, e.g. "https://am.example.com/am".
	BaseURL string

	// TokenHeader carries the SSO token. Defaults to DefaultTokenHeader.
	// The token is never sent as a cookie or query parameter.
	TokenHeader string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// SessionInfo is the server's answer to a validation call.
type SessionInfo struct {
	Valid      bool   `json:"valid"`
	SessionUID string `json:"sessionUid,omitempty"`
	UID        string `json:"uid,omitempty"`
	Realm      string `json:"realm,omitempty"`
}

// Client calls the sessions endpoint of an access management server.
type Client struct {
	base        *url.URL
	tokenHeader string
	hc          *http.Client
}

// New creates a validation client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("amclient: parse base URL: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("amclient: base URL %q is not absolute", cfg.BaseURL)
	}
	header := cfg.TokenHeader
	if header == "" {
		header = DefaultTokenHeader
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: base, tokenHeader: header, hc: hc}, nil
}

// TokenHeader returns the header name the SSO token is sent in.
func (c *Client) TokenHeader() string { return c.tokenHeader }

// Validate asks the server whether token still names a live session.
// An invalid token is not an error: the server answers {"valid": false}.
func (c *Client) Validate(ctx context.Context, token string) (*SessionInfo, error) {
	res, err := c.postAction(ctx, token, "validate")
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, res.StatusCode)
	}
	ctype, err := contenttype.GetMediaType(&http.Request{Header: res.Header})
	if err != nil || !ctype.Matches(jsonMediaType) {
		return nil, fmt.Errorf("amclient: unexpected content type %q", res.Header.Get("Content-Type"))
	}

	var info SessionInfo
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("amclient: decode validation response: %w", err)
	}
	return &info, nil
}

// Logout ends the session named by token.
func (c *Client) Logout(ctx context.Context, token string) error {
	res, err := c.postAction(ctx, token, "logout")
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, res.StatusCode)
	}
	return nil
}

func (c *Client) postAction(ctx context.Context, token, action string) (*http.Response, error) {
	endpoint := c.base.JoinPath("sessions")
	endpoint.RawQuery = url.Values{"_action": []string{action}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("amclient: build request: %w", err)
	}
	req.Header.Set(c.tokenHeader, token)
	req.Header.Set("Accept-API-Version", acceptAPIVersion)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("amclient: %s call: %w", action, err)
	}
	return res, nil
}
