package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// requestError is a malformed request, reported as-is with its status.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

// decodeJSON reads exactly one JSON value into dst. Unknown fields, trailing
// data, a non-JSON content type and bodies over maxBytes are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			return &requestError{status: http.StatusUnsupportedMediaType, msg: "content type must be application/json"}
		}
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var (
			syntaxErr *json.SyntaxError
			typeErr   *json.UnmarshalTypeError
			maxErr    *http.MaxBytesError
		)
		switch {
		case errors.As(err, &maxErr):
			return &requestError{status: http.StatusRequestEntityTooLarge, msg: fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)}
		case errors.Is(err, io.EOF):
			return &requestError{status: http.StatusBadRequest, msg: "request body is empty"}
		case errors.As(err, &syntaxErr):
			return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)}
		case errors.As(err, &typeErr):
			return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf("field %q has the wrong type", typeErr.Field)}
		default:
			return &requestError{status: http.StatusBadRequest, msg: "invalid request body: " + err.Error()}
		}
	}
	if dec.More() {
		return &requestError{status: http.StatusBadRequest, msg: "request body must hold a single JSON value"}
	}
	return nil
}
