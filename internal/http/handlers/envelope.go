// Package handlers exposes the action layer over HTTP. Every response body is
// one envelope: {"success":true,"data":...} or {"success":false,"error":{...}}.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/wolfman30/caremarket-platform/internal/actions"
)

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorEnvelope struct {
	Success bool           `json:"success"`
	Error   *actions.Error `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successEnvelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	ae := actions.AsError(err)
	writeJSON(w, statusFor(ae.Code), errorEnvelope{Success: false, Error: ae})
}

// WriteError renders an error envelope; middleware uses it for auth failures.
func WriteError(w http.ResponseWriter, code actions.Code, message string) {
	writeJSON(w, statusFor(code), errorEnvelope{Success: false, Error: &actions.Error{Code: code, Message: message}})
}

// respond renders the result of an action call.
func respond(w http.ResponseWriter, status int, data any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, status, data)
}

func statusFor(code actions.Code) int {
	switch code {
	case actions.CodeUnauthorized:
		return http.StatusForbidden
	case actions.CodeNotFoundOrProcessed:
		return http.StatusNotFound
	case actions.CodeValidation:
		return http.StatusBadRequest
	case actions.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func invalid(msg string) error {
	return &actions.Error{Code: actions.CodeValidation, Message: msg}
}

// decodeJSON reads a JSON body. An empty body is accepted when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	if r.Body == nil || r.Body == http.NoBody {
		if optional {
			return nil
		}
		return invalid("request body is required")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if optional {
				return nil
			}
			return invalid("request body is required")
		}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return invalid("malformed JSON body")
		}
		return invalid("invalid request body: " + err.Error())
	}
	return nil
}
