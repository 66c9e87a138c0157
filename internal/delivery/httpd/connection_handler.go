package httpd

import (
	"net/http"
)

type connectionResponse struct {
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) GetConnection(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, connectionResponse{State: h.client.RPC.State().String()})
}

func (h *Handler) OpenConnection(w http.ResponseWriter, r *http.Request) {
	msg, err := h.client.Open(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to open websocket connection")
		return
	}

	writeSuccess(w, connectionResponse{State: h.client.RPC.State().String(), Message: msg})
}

func (h *Handler) CloseConnection(w http.ResponseWriter, r *http.Request) {
	msg, err := h.client.Close(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to close websocket connection")
		return
	}

	writeSuccess(w, connectionResponse{State: h.client.RPC.State().String(), Message: msg})
}
