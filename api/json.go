package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/c360studio/shelter/validation"
)

// maxRequestBodySize limits the size of request bodies to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// ErrInvalidJSON is returned by DecodeFields when the body is not a JSON object.
var ErrInvalidJSON = errors.New("invalid JSON data")

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Message string            `json:"message"`
	Error   string            `json:"error,omitempty"`
	Errors  validation.Errors `json:"errors,omitempty"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The header is already out; nothing useful can be done on failure.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an ErrorResponse with a message and an error detail.
func WriteError(w http.ResponseWriter, status int, message, detail string) {
	WriteJSON(w, status, ErrorResponse{Message: message, Error: detail})
}

// WriteValidationError answers 400 with the per-field failures.
func WriteValidationError(w http.ResponseWriter, errs validation.Errors) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Validation failed", Errors: errs})
}

// DecodeFields reads a JSON object body into validation fields. Absent,
// malformed or non-object bodies, and bodies with anything after the
// object, yield ErrInvalidJSON.
func DecodeFields(w http.ResponseWriter, r *http.Request) (validation.Fields, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	var fields validation.Fields
	if err := dec.Decode(&fields); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty body", ErrInvalidJSON)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: body is not an object", ErrInvalidJSON)
	}
	// The object must be the whole body.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrInvalidJSON)
	}
	return fields, nil
}
