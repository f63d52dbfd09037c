package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/r2s/authgate"
)

// ErrorBody is the JSON shape of every rejection.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// WriteError answers with the status and body for err's kind.
func WriteError(w http.ResponseWriter, err error) {
	kind := authgate.KindOf(err)
	WriteJSON(w, kind.HTTPStatus(), ErrorBody{Code: kind.Code(), Message: kind.Message()})
}

// WriteJSON writes v as the response body with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
