package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/pkg/enums"
	pkgerrors "github.com/msa-portal/portal-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttl  map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = value.(string)
	f.ttl[key] = ttl
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = value.(string)
	f.ttl[key] = ttl
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func postWithKey(path, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{"invite", http.MethodPost, "/api/v1/members/invitations", dayTTL, true},
		{"apply", http.MethodPost, "/api/v1/volunteers/applications/", dayTTL, true},
		{"create message", http.MethodPost, "/api/v1/messages", dayTTL, true},
		{"register", http.MethodPost, "/api/v1/events/7f1c/registrations", dayTTL, true},
		{"register pattern", http.MethodPost, "/api/v1/events/{eventID}/registrations", dayTTL, true},
		{"send", http.MethodPost, "/api/v1/messages/m1/send", weekTTL, true},
		{"approve", http.MethodPost, "/api/v1/members/invitations/i1/approve", 0, false},
		{"list", http.MethodGet, "/api/v1/messages", 0, false},
		{"nested too deep", http.MethodPost, "/api/v1/events/e1/x/registrations", 0, false},
	}

	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.path)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

func TestIdempotencyMiddlewareValidatesHeader(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	for _, key := range []string{"", strings.Repeat("k", maxIdempotencyKeyLen+1)} {
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, postWithKey("/api/v1/members/invitations", key, `{"email":"a@b.co"}`))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("key len %d: expected 400 got %d", len(key), resp.Code)
		}
	}
	if handlerCalled {
		t.Fatalf("handler should not run without a usable idempotency key")
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, postWithKey("/api/v1/messages/m1/send", "abc", ""))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", resp.Code)
	}
	if resp.Header().Get(replayedHeader) != "" {
		t.Fatal("first response must not be marked as replayed")
	}
	if got := store.ttl["fake:anonymous:abc"]; got != weekTTL {
		t.Fatalf("expected completed record kept for a week, got %v", got)
	}

	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, postWithKey("/api/v1/messages/m1/send", "abc", ""))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected replay status 201 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" || rec.Header().Get(replayedHeader) != "true" {
		t.Fatalf("unexpected replay headers %v", rec.Header())
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mw(handler).ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/members/invitations", "xyz", `{"email":"a@b.co"}`))

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, postWithKey("/api/v1/members/invitations", "xyz", `{"email":"c@d.co"}`))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, code)
	}
}

func TestIdempotencyMiddlewareRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var duplicate *httptest.ResponseRecorder
	var calls int
	var handler http.Handler
	handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if duplicate == nil {
			// the retry lands while the first request is still running
			duplicate = httptest.NewRecorder()
			mw(handler).ServeHTTP(duplicate, postWithKey("/api/v1/events/e1/registrations", "dup", `{"name":"Amina"}`))
		}
		w.WriteHeader(http.StatusCreated)
	})

	first := httptest.NewRecorder()
	mw(handler).ServeHTTP(first, postWithKey("/api/v1/events/e1/registrations", "dup", `{"name":"Amina"}`))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected first request to succeed, got %d", first.Code)
	}
	if duplicate.Code != http.StatusConflict {
		t.Fatalf("expected in-flight duplicate to conflict, got %d", duplicate.Code)
	}
	if calls != 1 {
		t.Fatalf("expected handler to run once, got %d", calls)
	}
}

func TestIdempotencyMiddlewareReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	status := http.StatusServiceUnavailable
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	})

	send := func() int {
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, postWithKey("/api/v1/volunteers/applications", "retry", `{"task_id":"t1"}`))
		return resp.Code
	}

	if code := send(); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", code)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected key released after a server error, got %v", store.data)
	}
	status = http.StatusCreated
	if code := send(); code != http.StatusCreated {
		t.Fatalf("expected retry to reach the handler, got %d", code)
	}
	if calls != 2 {
		t.Fatalf("expected 2 handler calls, got %d", calls)
	}
}

func TestIdempotencyScopesKeysPerCaller(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	for _, id := range []string{"u1", "u2"} {
		req := postWithKey("/api/v1/messages", "same", `{"subject":"hi"}`)
		req = req.WithContext(WithUser(req.Context(), &backend.User{ID: id, Role: enums.MemberRoleAdmin}))
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	tokenReq := postWithKey("/api/v1/messages", "same", `{"subject":"hi"}`)
	tokenReq = tokenReq.WithContext(backend.WithAccessToken(tokenReq.Context(), "opaque-token"))
	mw(handler).ServeHTTP(httptest.NewRecorder(), tokenReq)

	if calls != 3 {
		t.Fatalf("expected each caller to get their own key, got %d calls", calls)
	}
	if _, ok := store.data["fake:user:u1:same"]; !ok {
		t.Fatalf("expected user scoped key, got %v", store.data)
	}
}
