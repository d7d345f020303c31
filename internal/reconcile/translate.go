package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/msa-portal/portal-backend/internal/backend"
	pkgerrors "github.com/msa-portal/portal-backend/pkg/errors"
)

// Translate turns a failed mutation into the typed error shown to the caller.
// subject names the thing being changed ("Member", "Event registration") and
// action the verb ("invite", "delete").
func Translate(subject, action string, err error) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("Timed out trying to %s %s", action, lower(subject)))
	}
	switch backend.KindOf(err) {
	case backend.KindDuplicate:
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("%s already exists", subject))
	case backend.KindPermission:
		return pkgerrors.Wrap(pkgerrors.CodeForbidden, err, fmt.Sprintf("You do not have permission to %s %s", action, lower(subject)))
	case backend.KindUnauthenticated:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "Unauthorized: please sign in again")
	case backend.KindCollectionMissing, backend.KindProcedureMissing:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s is not available yet", plural(subject)))
	case backend.KindNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, fmt.Sprintf("%s not found", subject))
	case backend.KindRejected:
		msg := rejectionMessage(err)
		if msg == "" {
			msg = fmt.Sprintf("Unable to %s %s", action, lower(subject))
		}
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, msg)
	case backend.KindMalformed:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("Invalid %s request", lower(subject)))
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("Failed to %s %s", action, lower(subject)))
	}
}

// CheckStatus converts a {success:false, error} procedure envelope into a
// KindRejected backend error. Payloads without the envelope pass.
func CheckStatus(procedure string, payload backend.Payload) error {
	status, ok := payload.Status()
	if !ok || *status.Success {
		return nil
	}
	msg := strings.TrimSpace(status.Error)
	if msg == "" {
		msg = "procedure reported failure"
	}
	if isDuplicateText(msg) {
		return backend.Errorf(backend.KindDuplicate, "call "+procedure, "%s", msg)
	}
	return &backend.Error{Kind: backend.KindRejected, Op: "call " + procedure, Err: errors.New(msg)}
}

func isDuplicateText(msg string) bool {
	lowered := strings.ToLower(msg)
	return strings.Contains(lowered, "duplicate") || strings.Contains(lowered, "already exists")
}

func rejectionMessage(err error) string {
	var typed *backend.Error
	if errors.As(err, &typed) && typed.Err != nil {
		return typed.Err.Error()
	}
	return ""
}

func lower(s string) string {
	return strings.ToLower(s)
}

func plural(s string) string {
	if strings.HasSuffix(s, "s") {
		return s
	}
	return s + "s"
}
