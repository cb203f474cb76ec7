package relay

import (
	"encoding/json"
	"net/url"
	"testing"
)

// The serialized message shape is a public contract; key names must stay
// exactly as the hidden-context protocol defines them.
func TestMessageWireShape(t *testing.T) {
	failed, err := json.Marshal(Failed("login_required", "chk-1"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"message":"sessionCheckFailed","reason":"login_required","checkId":"chk-1"}`
	if string(failed) != want {
		t.Errorf("failed message = %s, want %s", failed, want)
	}

	ok, err := json.Marshal(Succeeded(map[string]any{"sub": "alice"}, "chk-1"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want = `{"message":"sessionCheckSucceeded","claims":{"sub":"alice"},"checkId":"chk-1"}`
	if string(ok) != want {
		t.Errorf("succeeded message = %s, want %s", ok, want)
	}

	// A claims-free success omits the claims key entirely.
	bare, err := json.Marshal(Succeeded(nil, ""))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want = `{"message":"sessionCheckSucceeded"}`
	if string(bare) != want {
		t.Errorf("bare message = %s, want %s", bare, want)
	}
}

func TestOriginOf(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://rp.example.com/sessionCheck.html", "https://rp.example.com"},
		{"https://rp.example.com:8443/a/b?c=d#e", "https://rp.example.com:8443"},
		{"/relative/path", ""},
		{"mailto:someone@example.com", ""},
	}
	for _, tc := range tests {
		u, err := url.Parse(tc.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.raw, err)
		}
		if got := OriginOf(u); got != tc.want {
			t.Errorf("OriginOf(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
	if got := OriginOf(nil); got != "" {
		t.Errorf("OriginOf(nil) = %q, want empty", got)
	}
}
