package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/colonylab/nestfeed/internal/realtime"
	apperrors "github.com/colonylab/nestfeed/pkg/errors"
	"github.com/colonylab/nestfeed/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into per-account WebSocket
// notification streams.
type RealtimeHandler struct {
	hub     *realtime.Hub
	streams *realtime.StreamManager
}

// NewRealtimeHandler constructs a realtime handler.
func NewRealtimeHandler(hub *realtime.Hub, streams *realtime.StreamManager) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, streams: streams}
}

// Stream starts (or joins) the account's push stream and upgrades the
// request to a websocket subscribed to the notifications stream. The stream
// keeps syncing while at least one connection remains.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	account := strings.TrimSpace(c.Query("account"))
	if account == "" {
		response.Error(c, apperrors.ErrAccountRequired)
		return
	}

	if _, err := h.streams.Acquire(c.Request.Context(), account); err != nil {
		response.Error(c, err)
		return
	}
	defer h.streams.Release(account)

	h.hub.Serve(account, []string{realtime.StreamNotifications}, c.Writer, c.Request)
}
