package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/direct-messaging/internal/core/domain"
	"github.com/99minutos/direct-messaging/internal/core/ports"
)

// MessageHandler serves the caller's stored conversation log.
type MessageHandler struct {
	directory ports.DirectoryService
}

func NewMessageHandler(directory ports.DirectoryService) *MessageHandler {
	return &MessageHandler{directory: directory}
}

// History handles GET /api/messages.
//
// @Summary      Message history
// @Description  Messages the caller sent or received, oldest first
// @Tags         messages
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query     int  false  "Most recent N messages (max 1000)"
// @Success      200    {array}   domain.Message
// @Failure      400    {object}  map[string]string
// @Failure      401    {object}  map[string]string
// @Router       /api/messages [get]
func (h *MessageHandler) History(c echo.Context) error {
	identity, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
	}

	msgs, err := h.directory.History(c.Request().Context(), identity, limit)
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	return c.JSON(http.StatusOK, msgs)
}
