package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wayfarelabs/wayfare/internal/api/middleware"
	"github.com/wayfarelabs/wayfare/internal/metrics"
	"github.com/wayfarelabs/wayfare/internal/models"
)

// CreateTravelLogRequest represents the create-log body.
type CreateTravelLogRequest struct {
	ImageURL string `json:"imageUrl"`
	Location string `json:"location"`
	DateTime int64  `json:"dateTime"`
	Details  string `json:"details"`
}

// TravelLogListResponse represents the log list response.
type TravelLogListResponse struct {
	Logs []models.TravelLog `json:"logs"`
}

// ListTravelLogs handles GET /logs: the caller's diary entries, newest
// first.
func (h *Handler) ListTravelLogs(w http.ResponseWriter, r *http.Request) {
	self := middleware.GetUserFromContext(r.Context())
	if self == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	logs, err := h.db.ListTravelLogs(r.Context(), self.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load logs")
		return
	}

	h.JSON(w, http.StatusOK, TravelLogListResponse{Logs: logs})
}

// CreateTravelLog handles POST /logs.
func (h *Handler) CreateTravelLog(w http.ResponseWriter, r *http.Request) {
	self := middleware.GetUserFromContext(r.Context())
	if self == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateTravelLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Location) == "" {
		h.Error(w, http.StatusBadRequest, "location is required")
		return
	}
	if len(req.Details) > 8192 {
		h.Error(w, http.StatusUnprocessableEntity, "details too long (max 8192 bytes)")
		return
	}
	if req.DateTime == 0 {
		req.DateTime = time.Now().UnixMilli()
	}

	log := &models.TravelLog{
		ID:        ulid.Make().String(),
		UserID:    self.ID,
		ImageURL:  req.ImageURL,
		Location:  strings.TrimSpace(req.Location),
		DateTime:  req.DateTime,
		Details:   req.Details,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := h.db.InsertTravelLog(r.Context(), log); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to save log")
		return
	}

	metrics.TravelLogsCreated.Inc()

	h.JSON(w, http.StatusCreated, log)
}

// SearchTravelLogs handles GET /logs/search?q=: matches location and
// details, case-insensitive.
func (h *Handler) SearchTravelLogs(w http.ResponseWriter, r *http.Request) {
	self := middleware.GetUserFromContext(r.Context())
	if self == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.Error(w, http.StatusBadRequest, "q is required")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	logs, err := h.db.SearchTravelLogs(r.Context(), self.ID, query, limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "search failed")
		return
	}

	h.JSON(w, http.StatusOK, TravelLogListResponse{Logs: logs})
}
