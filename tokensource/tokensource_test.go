package tokensource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStatic(t *testing.T) {
	s := Static("sso-token")
	defer s.Close()

	tok, err := s.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() failed: %v", err)
	}
	if tok != "sso-token" {
		t.Fatalf("Token() = %q, want sso-token", tok)
	}
}

func TestFromFile_InitialRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  first-token\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile() failed: %v", err)
	}
	defer s.Close()

	tok, err := s.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() failed: %v", err)
	}
	if tok != "first-token" {
		t.Fatalf("Token() = %q, want first-token (whitespace trimmed)", tok)
	}
}

func TestFromFile_MissingFile(t *testing.T) {
	if _, err := FromFile(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("FromFile() accepted a missing file")
	}
}

func TestFromFile_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("first-token"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := FromFile(path, WithPollInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("FromFile() failed: %v", err)
	}
	defer s.Close()

	if err := os.WriteFile(path, []byte("rotated-token"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		tok, err := s.Token(context.Background())
		if err != nil {
			t.Fatalf("Token() failed: %v", err)
		}
		if tok == "rotated-token" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("token was not reloaded after file change")
}

func TestFromFile_CloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("tok"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() failed: %v", err)
	}
}
