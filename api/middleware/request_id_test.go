package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/pkg/logger"
)

func TestRequestIDReusesWellFormedHeader(t *testing.T) {
	var seen string
	h := RequestID(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = backend.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "edge-1234")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "edge-1234" {
		t.Fatalf("expected inbound id on context, got %q", seen)
	}
	if got := rec.Header().Get(requestIDHeader); got != "edge-1234" {
		t.Fatalf("expected inbound id echoed, got %q", got)
	}
}

func TestRequestIDReplacesMalformedHeader(t *testing.T) {
	var seen string
	h := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = backend.RequestIDFromContext(r.Context())
	}))

	for _, inbound := range []string{"", "has spaces", strings.Repeat("a", 129)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, inbound)
		h.ServeHTTP(httptest.NewRecorder(), req)
		if _, err := uuid.Parse(seen); err != nil {
			t.Fatalf("inbound %q: expected a generated uuid, got %q", inbound, seen)
		}
	}
}
