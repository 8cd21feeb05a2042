package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"hermannm.dev/wrap"
)

type errorResponse struct {
	Error string `json:"error"`
}

func sendError(w http.ResponseWriter, message string, statusCode int, err error) {
	if err != nil {
		if message == "" {
			message = err.Error()
		} else {
			message = wrap.Error(err, message).Error()
		}
	}

	if statusCode >= http.StatusInternalServerError {
		slog.Error("request failed", "status", statusCode, "error", message)
	} else {
		slog.Debug("request rejected", "status", statusCode, "error", message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

func sendJSON(w http.ResponseWriter, value any) {
	body, err := json.Marshal(value)
	if err != nil {
		sendError(w, "failed to serialize response", http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}
