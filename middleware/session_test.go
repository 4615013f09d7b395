package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestWithSessionIssuesCookie(t *testing.T) {
	var gotID string
	handler := WithSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = SessionID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotID == "" {
		t.Fatal("handler should see a session ID")
	}

	cookies := rec.Result().Cookies()
	var found bool
	for _, c := range cookies {
		if c.Name == CookieName && c.Value == gotID {
			found = true
		}
	}
	if !found {
		t.Errorf("response cookies = %v, want %s=%s", cookies, CookieName, gotID)
	}
}

func TestWithSessionReusesCookie(t *testing.T) {
	var gotID string
	handler := WithSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = SessionID(r.Context())
	}))

	existing := uuid.New().String()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: existing})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotID != existing {
		t.Errorf("SessionID = %q, want %q", gotID, existing)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("no new cookie should be set when one exists")
	}
}

func TestWithSessionReissuesMalformedCookie(t *testing.T) {
	// Cookie values are client-controlled and end up in store paths, so
	// anything that is not one of our UUIDs gets replaced.
	for _, value := range []string{"../escaped", "not-a-uuid", ".."} {
		var gotID string
		handler := WithSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotID = SessionID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: value})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if gotID == value {
			t.Errorf("cookie %q should not be reused as a session ID", value)
		}
		if _, err := uuid.Parse(gotID); err != nil {
			t.Errorf("cookie %q: reissued ID %q is not a UUID", value, gotID)
		}
		if len(rec.Result().Cookies()) == 0 {
			t.Errorf("cookie %q: a replacement cookie should be set", value)
		}
	}
}

func TestSessionIDWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id := SessionID(req.Context()); id != "" {
		t.Errorf("SessionID = %q, want empty without middleware", id)
	}
}
