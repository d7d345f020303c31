package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// Inbound ids outside this pattern are replaced with a fresh uuid.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// RequestID tags the request with an id, reusing a well-formed inbound one,
// and hands it to the logger and to backend adapters.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if !requestIDPattern.MatchString(reqID) {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			ctx := backend.WithRequestID(r.Context(), reqID)
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
