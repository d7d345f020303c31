package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/msa-portal/portal-backend/api/responses"
	"github.com/msa-portal/portal-backend/internal/backend"
	pkgerrors "github.com/msa-portal/portal-backend/pkg/errors"
	"github.com/msa-portal/portal-backend/pkg/logger"
	pkgredis "github.com/msa-portal/portal-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	dayTTL     = 24 * time.Hour
	weekTTL    = 7 * 24 * time.Hour
	pendingTTL = 2 * time.Minute

	maxIdempotencyKeyLen = 255
	maxIdempotentBody    = 1 << 20
)

const (
	statePending   = "pending"
	stateCompleted = "completed"
)

type idempotencyRule struct {
	method   string
	segments []string
	ttl      time.Duration
}

// Mutations a client may retry after a dropped response. Sends reach real
// recipients, so their replay window is a week.
var idempotencyRules = []idempotencyRule{
	newRule(http.MethodPost, "/api/v1/members/invitations", dayTTL),
	newRule(http.MethodPost, "/api/v1/volunteers/applications", dayTTL),
	newRule(http.MethodPost, "/api/v1/messages", dayTTL),
	newRule(http.MethodPost, "/api/v1/events/{eventID}/registrations", dayTTL),
	newRule(http.MethodPost, "/api/v1/monitoring/logs", dayTTL),
	newRule(http.MethodPost, "/api/v1/messages/{messageID}/send", weekTTL),
}

type idempotencyRecord struct {
	State       string `json:"state"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type idempotencyStore interface {
	pkgredis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Idempotency makes the mutations in idempotencyRules safe to retry. The
// first request claims the key with a pending marker; a duplicate arriving
// while it runs gets a conflict, and one arriving afterwards gets the stored
// response. Server errors release the key so the client can retry.
func Idempotency(store idempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case clientKey == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(clientKey) > maxIdempotencyKeyLen:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header too long"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody+1))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			if len(body) > maxIdempotentBody {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := fingerprint(r.Method, r.URL.Path, body)
			key := store.IdempotencyKey(callerScope(r), clientKey)

			pending, _ := json.Marshal(idempotencyRecord{State: statePending, RequestHash: requestHash})
			claimed, err := store.SetNX(ctx, key, string(pending), pendingTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replayOrReject(ctx, logg, w, store, key, requestHash)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.statusOrOK()
			if status >= http.StatusInternalServerError {
				if err := store.Del(ctx, key); err != nil {
					logIdempotencyErr(ctx, logg, "release idempotency key", err)
				}
				return
			}
			done, err := json.Marshal(idempotencyRecord{
				State:       stateCompleted,
				RequestHash: requestHash,
				Status:      status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err != nil {
				logIdempotencyErr(ctx, logg, "encode idempotency record", err)
				return
			}
			if err := store.Set(ctx, key, string(done), ttl); err != nil {
				logIdempotencyErr(ctx, logg, "persist idempotency record", err)
			}
		})
	}
}

func replayOrReject(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, store idempotencyStore, key, requestHash string) {
	stored, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// claim expired between SETNX and GET
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotent request still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case record.RequestHash != requestHash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.State != stateCompleted:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotent request still in progress"))
	default:
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set(replayedHeader, "true")
		w.WriteHeader(record.Status)
		_, _ = w.Write(record.Body)
	}
}

// callerScope keeps keys of different callers apart. Unverified callers are
// told apart by a digest of their token.
func callerScope(r *http.Request) string {
	if id := UserIDFromContext(r.Context()); id != "" {
		return "user:" + id
	}
	if token := backend.AccessTokenFromContext(r.Context()); token != "" {
		return "token:" + digest([]byte(token))[:16]
	}
	return "anonymous"
}

func fingerprint(method, path string, body []byte) string {
	return digest(bytes.Join([][]byte{[]byte(method), []byte(path), body}, []byte{0}))
}

func digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func newRule(method, path string, ttl time.Duration) idempotencyRule {
	return idempotencyRule{method: method, segments: splitPath(path), ttl: ttl}
}

func routeTTL(method, path string) (time.Duration, bool) {
	segments := splitPath(path)
	for _, rule := range idempotencyRules {
		if rule.method == method && rule.matches(segments) {
			return rule.ttl, true
		}
	}
	return 0, false
}

// matches compares path segments; a {param} segment matches any one segment.
func (r idempotencyRule) matches(segments []string) bool {
	if len(segments) != len(r.segments) {
		return false
	}
	for i, want := range r.segments {
		if strings.HasPrefix(want, "{") && strings.HasSuffix(want, "}") {
			continue
		}
		if segments[i] != want {
			return false
		}
	}
	return true
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusOrOK() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func logIdempotencyErr(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
