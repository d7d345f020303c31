package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeIdempotency, status: http.StatusConflict, publicMsg: "idempotency key reused", detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded", retryable: true},
		{code: CodeTimeout, status: http.StatusGatewayTimeout, publicMsg: "request timed out", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeAndUserMessage(t *testing.T) {
	err := Wrap(CodeConflict, stdErrors.New("duplicate key value"), "A member with this email already exists")
	if !IsCode(err, CodeConflict) {
		t.Fatalf("expected conflict code")
	}
	if IsCode(err, CodeForbidden) {
		t.Fatalf("unexpected forbidden match")
	}
	if got := UserMessage(err, "fallback"); got != "A member with this email already exists" {
		t.Fatalf("unexpected user message %q", got)
	}
	if got := UserMessage(stdErrors.New("raw"), "fallback"); got != "fallback" {
		t.Fatalf("untyped errors should use fallback, got %q", got)
	}
}

func TestDumpIncludesChain(t *testing.T) {
	cause := stdErrors.New("relation \"volunteer_tasks\" does not exist")
	dump := Dump(Wrap(CodeDependency, cause, "volunteer tasks are not available yet"))
	if dump.Code != CodeDependency {
		t.Fatalf("expected dependency code, got %s", dump.Code)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %d", len(dump.Chain))
	}
}

func TestDumpExtractsDriverFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "members_email_key", TableName: "members", Detail: "Key (email) already exists."}
	dump := Dump(Wrap(CodeConflict, fmt.Errorf("insert member: %w", pgErr), "duplicate"))
	if dump.DB == nil || dump.DB.Driver != "pgx" || dump.DB.Constraint != "members_email_key" {
		t.Fatalf("unexpected db fields %+v", dump.DB)
	}
	fields := dump.Fields()
	if fields["db_code"] != "23505" || fields["db_table"] != "members" || fields["error_code"] != CodeConflict {
		t.Fatalf("unexpected log fields %v", fields)
	}

	liteErr := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}
	dump = Dump(fmt.Errorf("insert: %w", liteErr))
	if dump.DB == nil || dump.DB.Driver != "sqlite" || dump.DB.Code != "2067" {
		t.Fatalf("unexpected sqlite fields %+v", dump.DB)
	}

	if Dump(stdErrors.New("plain")).DB != nil {
		t.Fatal("plain errors carry no db fields")
	}
	if _, ok := Dump(stdErrors.New("plain")).Fields()["db_driver"]; ok {
		t.Fatal("plain errors must not log a driver")
	}
}

func TestErrorsIsMatchesOnCode(t *testing.T) {
	err := fmt.Errorf("load member: %w", New(CodeNotFound, "Member not found"))
	if !stdErrors.Is(err, New(CodeNotFound, "")) {
		t.Fatal("expected code-only target to match")
	}
	if stdErrors.Is(err, New(CodeNotFound, "Event not found")) {
		t.Fatal("a target with a different message must not match")
	}
	if stdErrors.Is(err, New(CodeConflict, "")) {
		t.Fatal("a different code must not match")
	}
}

func TestClassifyAndRetryable(t *testing.T) {
	timeout := Classify(fmt.Errorf("query: %w", context.DeadlineExceeded))
	if timeout.Code() != CodeTimeout || !Retryable(timeout) {
		t.Fatalf("expected retryable timeout, got %s", timeout.Code())
	}
	if got := Classify(stdErrors.New("boom")).Code(); got != CodeInternal {
		t.Fatalf("expected internal for untyped errors, got %s", got)
	}
	typed := New(CodeValidation, "bad")
	if Classify(typed) != typed {
		t.Fatal("typed errors must pass through")
	}
	if Classify(nil) != nil || Retryable(nil) || Retryable(typed) {
		t.Fatal("unexpected classification for nil or validation errors")
	}
}
