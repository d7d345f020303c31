package validators

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	pkgerrors "github.com/msa-portal/portal-backend/pkg/errors"
)

// MaxBodyBytes caps request bodies. Message bodies are the largest payloads.
const MaxBodyBytes = 256 << 10

// DecodeJSON decodes a required JSON body into dest. Unknown fields are
// rejected; struct validation happens in the service after normalizing.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	return decodeBody(w, r, dest, false)
}

// DecodeOptionalJSON is DecodeJSON for bodies that may be omitted.
func DecodeOptionalJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	return decodeBody(w, r, dest, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest any, optional bool) error {
	if r.Body == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body required")
	}
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(dest)
	if err == nil && decoder.More() {
		err = errors.New("unexpected data after JSON body")
	}
	return bodyError(err, optional)
}

func bodyError(err error, optional bool) error {
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		if optional {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "request body required")
	case errors.As(err, &tooLarge):
		return pkgerrors.Newf(pkgerrors.CodeValidation, "request body exceeds %d bytes", tooLarge.Limit)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
			WithDetails(map[string]any{"error": err.Error()})
	}
}
