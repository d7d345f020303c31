package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/msa-portal/portal-backend/internal/backend"
	pkgerrors "github.com/msa-portal/portal-backend/pkg/errors"
	"github.com/msa-portal/portal-backend/pkg/logger"
	"github.com/msa-portal/portal-backend/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError maps err onto the typed error envelope. Client errors are
// logged at warn level, everything else at error level with the Postgres
// and backend details pulled out of the chain.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.Classify(err)
	meta := pkgerrors.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	if meta.HTTPStatus < http.StatusInternalServerError {
		if m := typed.Message(); m != "" {
			msg = m
		}
	}

	payload := types.ErrorEnvelope{
		Error: types.APIError{
			Code:      string(typed.Code()),
			Message:   msg,
			RequestID: backend.RequestIDFromContext(ctx),
		},
	}
	if meta.DetailsAllowed {
		if details := typed.Details(); details != nil {
			payload.Error.Details = details
		}
	}

	if logg != nil {
		logError(ctx, logg, meta.HTTPStatus, err)
	}
	writeJSON(w, meta.HTTPStatus, payload)
}

func logError(ctx context.Context, logg *logger.Logger, status int, err error) {
	fields := pkgerrors.Dump(err).Fields()
	fields["status"] = status
	var backendErr *backend.Error
	if errors.As(err, &backendErr) {
		fields["backend_op"] = backendErr.Op
		fields["backend_kind"] = string(backendErr.Kind)
	}
	ctx = logg.WithFields(ctx, fields)
	if status < http.StatusInternalServerError {
		logg.WarnErr(ctx, "request.rejected", err)
		return
	}
	logg.Error(ctx, "request.error", err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
