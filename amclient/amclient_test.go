package amclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidate_HappyPath(t *testing.T) {
	var gotReq *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"valid": true, "uid": "alice", "realm": "/"})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/am"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	info, err := c.Validate(context.Background(), "sso-token")
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if !info.Valid || info.UID != "alice" || info.Realm != "/" {
		t.Fatalf("info = %+v", info)
	}

	if gotReq.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", gotReq.Method)
	}
	if gotReq.URL.Path != "/am/sessions" {
		t.Errorf("path = %s, want /am/sessions", gotReq.URL.Path)
	}
	if gotReq.URL.Query().Get("_action") != "validate" {
		t.Errorf("_action = %q, want validate", gotReq.URL.Query().Get("_action"))
	}
	if got := gotReq.Header.Get(DefaultTokenHeader); got != "sso-token" {
		t.Errorf("token header = %q, want sso-token", got)
	}
	if got := gotReq.Header.Get("Accept-API-Version"); got != "resource=2.1, protocol=1.0" {
		t.Errorf("Accept-API-Version = %q", got)
	}
	// The token travels only in its header.
	if len(gotReq.Cookies()) != 0 {
		t.Errorf("unexpected cookies: %v", gotReq.Cookies())
	}
}

func TestValidate_InvalidSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"valid": false})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	info, err := c.Validate(context.Background(), "expired-token")
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if info.Valid {
		t.Fatal("info.Valid = true, want false")
	}
}

func TestValidate_CustomTokenHeader(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Custom-SSO")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"valid": true})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, TokenHeader: "X-Custom-SSO"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if _, err := c.Validate(context.Background(), "tok"); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if gotHeader != "tok" {
		t.Errorf("custom header = %q, want tok", gotHeader)
	}
}

func TestValidate_NonJSONContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>login page</html>"))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if _, err := c.Validate(context.Background(), "tok"); err == nil {
		t.Fatal("Validate() accepted a non-JSON response")
	}
}

func TestValidate_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{truncated"))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if _, err := c.Validate(context.Background(), "tok"); err == nil {
		t.Fatal("Validate() accepted a malformed body")
	}
}

func TestValidate_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	_, err = c.Validate(context.Background(), "tok")
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("Validate() error = %v, want ErrUnexpectedStatus", err)
	}
}

func TestLogout(t *testing.T) {
	var gotAction string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAction = r.URL.Query().Get("_action")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"result": "Successfully logged out"})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := c.Logout(context.Background(), "tok"); err != nil {
		t.Fatalf("Logout() failed: %v", err)
	}
	if gotAction != "logout" {
		t.Errorf("_action = %q, want logout", gotAction)
	}
}

func TestNew_RejectsRelativeBase(t *testing.T) {
	if _, err := New(Config{BaseURL: "/am"}); err == nil {
		t.Fatal("New() accepted a relative base URL")
	}
}
