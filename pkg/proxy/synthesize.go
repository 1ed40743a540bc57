package proxy

import (
	"encoding/json"
	"net/http"

	"github.com/milvetnav/navigator-gateway/pkg/domain"
)

// writeError synthesizes a well-formed JSON error response. Offline and
// upstream failures always resolve to one of these rather than a dropped
// connection, so clients can branch on the error field instead of guessing.
func (rt *Router) writeError(w http.ResponseWriter, status int, code, message, requestID string) {
	rt.writeJSON(w, status, domain.ErrorResponse{
		Error:     code,
		Message:   message,
		RequestID: requestID,
	})
}

func (rt *Router) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		rt.logger.Error("failed to encode response", "error", err)
	}
}
