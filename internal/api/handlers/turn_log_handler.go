package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Sabeehq11/CMI/internal/services"
	"github.com/Sabeehq11/CMI/internal/utils"
)

type TurnLogHandler struct {
	svc services.TurnLogService
}

// NewTurnLogHandler accepts a nil service; the route then answers 503.
func NewTurnLogHandler(svc services.TurnLogService) *TurnLogHandler {
	return &TurnLogHandler{svc: svc}
}

func (h *TurnLogHandler) ListBySession(c *gin.Context) {
	const op = "TurnLogHandler.ListBySession"

	if h.svc == nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "turn log is not configured", nil))
		return
	}

	sessionID := c.Param("session_id")

	limit := int64(200)
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	rows, err := h.svc.ListBySession(c.Request.Context(), sessionID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"turns":      rows,
	})
}
