package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/msa-portal/portal-backend/internal/backend"
	pkgerrors "github.com/msa-portal/portal-backend/pkg/errors"
	"github.com/msa-portal/portal-backend/pkg/logger"
	"github.com/msa-portal/portal-backend/pkg/types"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"hello": "world"})

	if got := w.Code; got != http.StatusCreated {
		t.Fatalf("expected status 201 but got %d", got)
	}

	var body types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode success envelope: %v", err)
	}
	if body.Data.(map[string]any)["hello"] != "world" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"field": "email"})
	WriteError(context.Background(), logger.Nop(), w, err)

	if got := w.Code; got != http.StatusBadRequest {
		t.Fatalf("expected status 400 but got %d", got)
	}

	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeValidation) || body.Error.Message != "bad input" {
		t.Fatalf("unexpected error %+v", body.Error)
	}
	if body.Error.Details == nil {
		t.Fatal("expected validation details to be exposed")
	}
}

func TestWriteErrorHidesInternalMessages(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("pq: relation members does not exist"))

	if got := w.Code; got != http.StatusInternalServerError {
		t.Fatalf("expected status 500 but got %d", got)
	}
	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeInternal) {
		t.Fatalf("expected internal code, got %s", body.Error.Code)
	}
	if body.Error.Message == "pq: relation members does not exist" {
		t.Fatal("internal error text leaked to the client")
	}
}

func TestWriteErrorCarriesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	ctx := backend.WithRequestID(context.Background(), "req-7")
	cause := &backend.Error{Kind: backend.KindDuplicate, Op: "insert members", Err: errors.New("unique")}
	WriteError(ctx, logger.Nop(), w, pkgerrors.Wrap(pkgerrors.CodeConflict, cause, "Member already exists"))

	if got := w.Code; got != http.StatusConflict {
		t.Fatalf("expected status 409 but got %d", got)
	}
	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if body.Error.RequestID != "req-7" {
		t.Fatalf("expected request id in envelope, got %q", body.Error.RequestID)
	}
	if body.Error.Message != "Member already exists" {
		t.Fatalf("unexpected message %q", body.Error.Message)
	}
}
