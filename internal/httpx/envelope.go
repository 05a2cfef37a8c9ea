package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iippk/PersonalWorks/internal/orders"
)

const CodeOK = 200

// Response wraps every payload; Code == 200 is success and mirrors the HTTP status otherwise.
type Response struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, response{Code: CodeOK, Message: "success", Data: data})
}

func writeFail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, response{Code: status, Message: msg})
}

// statusFor maps the order error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrInvalidInput), errors.Is(err, orders.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, orders.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrRemoteRejected):
		return http.StatusBadGateway
	case errors.Is(err, orders.ErrRemoteUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
