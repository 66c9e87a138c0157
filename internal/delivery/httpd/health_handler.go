package httpd

import (
	"net/http"
	"time"
)

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"service":   "speech-bridge",
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"websocket":       h.client.RPC.State().String(),
		"active_sessions": len(h.client.Sessions.Active()),
		"history":         h.history != nil,
		"archive":         h.archive != nil,
	}
	if h.stats != nil {
		status["workers"] = h.stats.GetStats()
	}

	writeSuccess(w, status)
}
