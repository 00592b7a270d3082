package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Nzyazin/payagent/internal/core/usecase"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusFor maps use case errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, usecase.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, usecase.ErrPinRequired),
		errors.Is(err, usecase.ErrMissingAccount),
		errors.Is(err, usecase.ErrEmptyPatch),
		errors.Is(err, usecase.ErrFileRequired):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrDispatchFailed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WriteError writes err as a JSON error body. Internal errors are not echoed.
func WriteError(w http.ResponseWriter, err error) {
	code := StatusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = http.StatusText(code)
	}
	WriteJSON(w, code, ErrorResponse{Error: msg})
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	response, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Internal Server Error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
