package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/expensly/authclient/internal/core/domain"
)

// OutboxReader exposes recorded notifications.
type OutboxReader interface {
	Messages(to string) []domain.Notification
}

type OutboxHandler struct {
	outbox OutboxReader
}

func NewOutboxHandler(outbox OutboxReader) *OutboxHandler {
	return &OutboxHandler{outbox: outbox}
}

type notificationResponse struct {
	Kind      domain.NotificationKind `json:"kind"`
	To        string                  `json:"to"`
	Token     string                  `json:"token"`
	CreatedAt string                  `json:"createdAt"`
}

// List returns the notifications recorded for an address.
//
// @Summary      List outbox messages
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        email  path      string  true  "Recipient"
// @Success      200    {array}   notificationResponse
// @Failure      403    {object}  map[string]string
// @Router       /admin/outbox/{email} [get]
func (h *OutboxHandler) List(c echo.Context) error {
	msgs := h.outbox.Messages(c.Param("email"))
	out := make([]notificationResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, notificationResponse{
			Kind:      m.Kind,
			To:        m.To,
			Token:     m.Token,
			CreatedAt: m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return c.JSON(http.StatusOK, out)
}
