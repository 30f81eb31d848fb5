package visitor

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testSecret = "test-secret-at-least-16-chars!!"

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner(testSecret)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

// =========================================================================
// SIGNER TESTS
// =========================================================================

func TestNewSigner_ShortSecret(t *testing.T) {
	if _, err := NewSigner("short"); err == nil {
		t.Fatal("NewSigner() should reject secrets shorter than 16 chars")
	}
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	s := newTestSigner(t)
	id := NewID()

	token, err := s.Issue(id)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("Issue() token doesn't look like a JWT: %q", token)
	}

	got, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != id {
		t.Errorf("Verify() id = %q, want %q", got, id)
	}
}

func TestIssue_EmptyID(t *testing.T) {
	if _, err := newTestSigner(t).Issue(""); err == nil {
		t.Fatal("Issue(\"\") should fail")
	}
}

func TestVerify_Expired(t *testing.T) {
	s := newTestSigner(t)
	token, err := s.issue(NewID(), -time.Second)
	if err != nil {
		t.Fatalf("issue() error = %v", err)
	}
	if _, err := s.Verify(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Verify(expired) error = %v, want ErrInvalid", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	s1 := newTestSigner(t)
	s2, _ := NewSigner("another-secret-of-enough-length")

	token, _ := s1.Issue(NewID())
	if _, err := s2.Verify(token); err == nil {
		t.Fatal("Verify() should fail with a different secret")
	}
}

func TestVerify_Tampered(t *testing.T) {
	s := newTestSigner(t)
	token, _ := s.Issue(NewID())
	if _, err := s.Verify(token[:len(token)-3] + "xxx"); err == nil {
		t.Fatal("Verify() should reject a tampered token")
	}
}

func TestVerify_NonXidSubject(t *testing.T) {
	s := newTestSigner(t)
	token, _ := s.Issue("user-123")
	if _, err := s.Verify(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Verify() subject check error = %v, want ErrInvalid", err)
	}
}

// =========================================================================
// MIDDLEWARE TESTS
// =========================================================================

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func run(t *testing.T, mw func(http.Handler) http.Handler, r *http.Request) (string, *httptest.ResponseRecorder) {
	t.Helper()
	var seen string
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return seen, rec
}

func TestMiddleware_IssuesCookieForBrowsers(t *testing.T) {
	s := newTestSigner(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15")

	id, rec := run(t, Middleware(s, true, discard), req)

	if id == "" {
		t.Fatal("handler saw no visitor id")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName {
		t.Fatalf("cookies = %v, want one %s cookie", cookies, CookieName)
	}
	if !cookies[0].HttpOnly {
		t.Error("visitor cookie must be HttpOnly")
	}
	if got, _ := s.Verify(cookies[0].Value); got != id {
		t.Errorf("cookie carries %q, context has %q", got, id)
	}
}

func TestMiddleware_ReusesValidCookie(t *testing.T) {
	s := newTestSigner(t)
	id := NewID()
	token, _ := s.Issue(id)

	req := httptest.NewRequest(http.MethodPost, "/api/submit", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})

	got, rec := run(t, Middleware(s, false, discard), req)

	if got != id {
		t.Errorf("visitor id = %q, want %q", got, id)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("valid cookie should not be reissued")
	}
}

func TestMiddleware_NoCookieForBots(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")

	id, rec := run(t, Middleware(newTestSigner(t), true, discard), req)

	if id != "" || len(rec.Result().Cookies()) != 0 {
		t.Errorf("bot got visitor id %q and cookies %v", id, rec.Result().Cookies())
	}
}

func TestMiddleware_ReadOnlyDoesNotIssue(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/registrations", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")

	_, rec := run(t, Middleware(newTestSigner(t), false, discard), req)

	if len(rec.Result().Cookies()) != 0 {
		t.Error("read-only middleware issued a cookie")
	}
}

func TestMiddleware_NilSignerPassesThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	id, rec := run(t, Middleware(nil, true, discard), req)
	if id != "" || len(rec.Result().Cookies()) != 0 {
		t.Error("nil signer should not touch the request")
	}
}
