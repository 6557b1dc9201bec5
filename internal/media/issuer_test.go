package media

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNumericUID_DeterministicAndBounded(t *testing.T) {
	a := NumericUID("user-123", 1000)
	if a != NumericUID("user-123", 1000) {
		t.Fatalf("uid must be stable")
	}
	for _, id := range []string{"", "a", "user-123", "another-user"} {
		uid := NumericUID(id, 1000)
		if uid < 1 || uid > 1000 {
			t.Fatalf("uid %d out of range for %q", uid, id)
		}
	}
	if NumericUID("x", 0) != 1 {
		t.Fatalf("zero range collapses to 1")
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(Config{URL: "wss://sfu", APIKey: "k"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	var d Issuer = Disabled{}
	if d.Enabled() {
		t.Fatalf("disabled issuer must report disabled")
	}
	if _, err := d.Issue("c1", "u1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestLiveKitIssuer_IssuesRoomScopedToken(t *testing.T) {
	const secret = "a-very-long-secret-for-signing-tokens"
	iss, err := New(Config{URL: "wss://sfu.example", APIKey: "key", APISecret: secret, TTL: 10 * time.Minute, UIDRange: 5000})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	tok, err := iss.Issue("call-1", "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok.Channel != "call-1" || tok.URL != "wss://sfu.example" {
		t.Fatalf("unexpected bundle: %+v", tok)
	}
	if tok.UID != NumericUID("alice", 5000) {
		t.Fatalf("uid mismatch")
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(tok.Token, claims, func(*jwt.Token) (any, error) { return []byte(secret), nil })
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	video, ok := claims["video"].(map[string]any)
	if !ok {
		t.Fatalf("missing video grant: %v", claims)
	}
	if video["room"] != "call-1" || video["roomJoin"] != true {
		t.Fatalf("unexpected grant: %v", video)
	}
	if claims["name"] != "alice" {
		t.Fatalf("expected name claim alice, got %v", claims["name"])
	}

	if _, err := iss.Issue("", "alice"); err == nil {
		t.Fatalf("expected error for empty channel")
	}
}
