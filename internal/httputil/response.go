package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/JustinTDCT/CineHub/internal/logger"
)

// MaxJSONBody caps request bodies decoded by ReadJSON.
const MaxJSONBody = 1 << 20

type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	write(w, status, Response{Status: "ok", Data: data})
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	write(w, status, Response{
		Status: "error",
		Error: &ErrorBody{
			Code:    code,
			Message: message,
		},
	})
}

func write(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("response encode failed", "error", err)
	}
}

// ReadJSON decodes a single JSON value from the request body into dst.
func ReadJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
