package handlers

import (
	"net/http"
	"strconv"

	"github.com/FASALGAF00R/Campuscore-backend/services"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	ledger *services.Ledger
	logger *zap.Logger
}

func NewNotificationHandler(ledger *services.Ledger, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{ledger: ledger, logger: logger}
}

func (h *NotificationHandler) List(c echo.Context) error {
	actor, ok := currentActor(c)
	if !ok {
		return unauthenticated(c)
	}
	limit, offset, err := pagination(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	f := services.LedgerFilter{Limit: limit, Offset: offset}
	if v := c.QueryParam("unread"); v != "" {
		if f.UnreadOnly, err = strconv.ParseBool(v); err != nil {
			return badRequest(c, "unread must be a boolean")
		}
	}

	page, err := h.ledger.ListForRecipient(c.Request().Context(), actor.ID, f)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *NotificationHandler) UnreadCount(c echo.Context) error {
	actor, ok := currentActor(c)
	if !ok {
		return unauthenticated(c)
	}
	n, err := h.ledger.UnreadCount(c.Request().Context(), actor.ID)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"unread": n})
}

func (h *NotificationHandler) MarkRead(c echo.Context) error {
	actor, ok := currentActor(c)
	if !ok {
		return unauthenticated(c)
	}
	n, err := h.ledger.MarkRead(c.Request().Context(), actor.ID, c.Param("id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	actor, ok := currentActor(c)
	if !ok {
		return unauthenticated(c)
	}
	updated, err := h.ledger.MarkAllRead(c.Request().Context(), actor.ID)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"updated": updated})
}
