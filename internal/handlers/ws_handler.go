package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/services"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/utils"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/ws"
)

type WSHandler struct {
	BaseHandler
	attemptService services.AttemptService
	hub            *ws.Hub
	upgrader       websocket.Upgrader
}

func NewWSHandler(attemptService services.AttemptService, hub *ws.Hub, origins *OriginPolicy, logger utils.Logger) *WSHandler {
	return &WSHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
		hub:            hub,
		upgrader:       websocket.Upgrader{CheckOrigin: origins.CheckWebSocketOrigin},
	}
}

// StreamAttempt godoc
// @Summary WebSocket stream of attempt events
// @Description Pushes autosave, submit and expiry events of one attempt to its owner or a lecturer
// @Tags websocket
// @Param id path uint true "Attempt ID"
// @Param access_token query string false "Bearer token for browsers"
// @Router /attempts/{id}/ws [get]
func (h *WSHandler) StreamAttempt(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}
	identity := h.identity(c)
	if identity == nil {
		return
	}

	// Same access rule as reading the attempt
	if _, err := h.attemptService.Get(c.Request.Context(), attemptID, identity); err != nil {
		h.handleServiceError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.LogError(c, err, "websocket upgrade failed", "attempt_id", attemptID)
		return
	}

	h.hub.AddConnection(attemptID, conn)
	defer h.hub.RemoveConnection(attemptID, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
