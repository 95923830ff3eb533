package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

// StatusHandler serves the backend status for dashboards.
type StatusHandler struct {
	mode      string
	conn      domain.Connection
	sessions  func() int
	comments  bool
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, conn domain.Connection, sessions func() int, comments bool) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		conn:      conn,
		sessions:  sessions,
		comments:  comments,
		startedAt: time.Now().UTC(),
	}
}

// GetStatus responds with the run mode, the connected account and session
// counts.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	account := h.conn.Account()
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"account":        account,
		"connected":      account != "",
		"chain_id":       h.conn.ChainID(),
		"sessions":       h.sessions(),
		"features":       map[string]bool{"comments": h.comments},
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
