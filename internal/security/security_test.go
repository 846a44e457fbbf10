package security

import (
	"strings"
	"testing"
	"time"

	"github.com/easeaico/project-chara/internal/errs"
)

func TestContentFilterAllowsCleanInput(t *testing.T) {
	f := NewContentFilter(2000, true)
	got, err := f.Filter("  今天天气不错  ")
	if err != nil {
		t.Fatalf("filter failed: %v", err)
	}
	if got != "今天天气不错" {
		t.Fatalf("expected trimmed content, got %q", got)
	}
}

func TestContentFilterRejectsForbiddenWord(t *testing.T) {
	f := NewContentFilter(2000, true)
	err := f.Check("给我讲个赌博的故事")
	if errs.CodeOf(err) != errs.CodeContentFiltered {
		t.Fatalf("expected CONTENT_FILTERED, got %v", err)
	}
}

func TestContentFilterRejectsPattern(t *testing.T) {
	f := NewContentFilter(2000, true)
	err := f.Check("我想攻击别人")
	if errs.CodeOf(err) != errs.CodeContentFiltered {
		t.Fatalf("expected CONTENT_FILTERED, got %v", err)
	}
}

func TestContentFilterRejectsOverlongMessage(t *testing.T) {
	f := NewContentFilter(10, true)
	err := f.Check(strings.Repeat("字", 11))
	if errs.CodeOf(err) != errs.CodeMessageTooLong {
		t.Fatalf("expected MESSAGE_TOO_LONG, got %v", err)
	}
	if f.Check(strings.Repeat("字", 10)) != nil {
		t.Fatal("expected exact-length message to pass")
	}
}

func TestContentFilterDisabled(t *testing.T) {
	f := NewContentFilter(10, false)
	if err := f.Check(strings.Repeat("赌博", 50)); err != nil {
		t.Fatalf("disabled filter must allow everything, got %v", err)
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	l := NewRateLimiter(3)
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	l.nowFunc = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if err := l.Allow("client-a"); err != nil {
			t.Fatalf("request %d should pass: %v", i, err)
		}
	}
	if err := l.Allow("client-a"); errs.CodeOf(err) != errs.CodeRateLimitExceeded {
		t.Fatalf("expected RATE_LIMIT_EXCEEDED, got %v", err)
	}

	// Another client has its own budget.
	if err := l.Allow("client-b"); err != nil {
		t.Fatalf("other client should pass: %v", err)
	}

	// The window slides: a minute later the budget is back.
	now = now.Add(61 * time.Second)
	if err := l.Allow("client-a"); err != nil {
		t.Fatalf("expected budget back after window, got %v", err)
	}

	allowed, denied := l.Counters()
	if allowed != 5 || denied != 1 {
		t.Fatalf("unexpected counters: allowed=%d denied=%d", allowed, denied)
	}
}

func TestTokenAuthRoundTrip(t *testing.T) {
	a := NewTokenAuth("test-secret", time.Hour)

	token, err := a.Issue("user-42")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	subject, err := a.Verify(token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if subject != "user-42" {
		t.Fatalf("expected user-42, got %q", subject)
	}
}

func TestTokenAuthRejectsExpiredAndForged(t *testing.T) {
	a := NewTokenAuth("test-secret", time.Hour)
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	a.nowFunc = func() time.Time { return now }

	token, err := a.Issue("user-42")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := a.Verify(token); err == nil {
		t.Fatal("expected expired token rejection")
	}

	other := NewTokenAuth("other-secret", time.Hour)
	forged, _ := other.Issue("user-42")
	if _, err := a.Verify(forged); err == nil {
		t.Fatal("expected wrong-secret rejection")
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := SanitizeFilename(`../etc/passwd<x>.json `); got != "_etc_passwd_x_.json" {
		t.Fatalf("unexpected sanitized name: %q", got)
	}
}

func TestValidIdentifiers(t *testing.T) {
	if !ValidCharacterID("rei_ayanami") || ValidCharacterID("不合法") || ValidCharacterID("") {
		t.Fatal("character id validation broken")
	}
	if !ValidSessionID("session_0123456789ab") || ValidSessionID("session_short") {
		t.Fatal("session id validation broken")
	}
}

func TestUserRegistryRegisterAndAuthenticate(t *testing.T) {
	r := NewUserRegistry()

	user, err := r.Register("misato", "nerv", "葛城美里")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.ID == "" || user.Username != "misato" {
		t.Fatalf("unexpected user: %#v", user)
	}

	if _, err := r.Register("misato", "other", ""); err == nil {
		t.Fatal("expected duplicate username rejected")
	}
	if _, err := r.Register("", "pw", ""); err == nil {
		t.Fatal("expected empty username rejected")
	}

	if _, err := r.Authenticate("misato", "wrong"); err == nil {
		t.Fatal("expected wrong password rejected")
	}
	logged, err := r.Authenticate("misato", "nerv")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if logged.LastLogin.IsZero() {
		t.Fatalf("expected login time recorded: %#v", logged)
	}
}

func TestTokenTTLExposed(t *testing.T) {
	a := NewTokenAuth("secret", 2*time.Hour)
	if a.TTL() != 2*time.Hour {
		t.Fatalf("unexpected ttl: %v", a.TTL())
	}
}
