package handlers

import (
	"net/http"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalUsers         int64 `json:"totalUsers"`
	TotalConversations int64 `json:"totalConversations"`
	TotalMessages      int64 `json:"totalMessages"`
	TotalTravelLogs    int64 `json:"totalTravelLogs"`
}

// Stats returns aggregate platform statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.db.CountUsers(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count users")
		return
	}
	convs, err := h.db.CountConversations(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count conversations")
		return
	}
	msgs, err := h.db.CountMessages(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count messages")
		return
	}
	logs, err := h.db.CountTravelLogs(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count logs")
		return
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalUsers:         users,
		TotalConversations: convs,
		TotalMessages:      msgs,
		TotalTravelLogs:    logs,
	})
}
