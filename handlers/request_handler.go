package handlers

import (
	"net/http"

	"github.com/FASALGAF00R/Campuscore-backend/models"
	"github.com/FASALGAF00R/Campuscore-backend/services"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type RequestHandler struct {
	engine *services.Engine
	logger *zap.Logger
}

func NewRequestHandler(engine *services.Engine, logger *zap.Logger) *RequestHandler {
	return &RequestHandler{engine: engine, logger: logger}
}

// CommandResponse wraps the updated request. Warning is set when the
// change was saved but some inbox entries were not.
type CommandResponse struct {
	Request      models.Request         `json:"request"`
	Code         services.ResultCode    `json:"code"`
	TransitionID string                 `json:"transition_id"`
	Message      *models.RequestMessage `json:"message,omitempty"`
	Warning      string                 `json:"warning,omitempty"`
}

func (h *RequestHandler) respond(c echo.Context, status int, res *services.Result) error {
	body := CommandResponse{
		Request:      res.Request,
		Code:         res.Code,
		TransitionID: res.TransitionID,
		Message:      res.Message,
	}
	if res.LedgerErr != nil {
		body.Warning = "notifications could not be recorded"
	}
	return c.JSON(status, body)
}

func (h *RequestHandler) Create(c echo.Context) error {
	actor, ok := currentActor(c)
	if !ok {
		return unauthenticated(c)
	}
	kind, ok := kindParam(c)
	if !ok {
		return unknownKind(c)
	}
	payload, err := services.NewCreatePayload(kind)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	if err := c.Bind(payload); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.engine.Create(c.Request().Context(), actor, payload)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return h.respond(c, http.StatusCreated, res)
}

func (h *RequestHandler) listFilter(c echo.Context) (services.ListFilter, error) {
	limit, offset, err := pagination(c)
	if err != nil {
		return services.ListFilter{}, err
	}
	f := services.ListFilter{
		Priority:   models.Priority(c.QueryParam("priority")),
		Category:   c.QueryParam("category"),
		AssigneeID: c.QueryParam("assignee"),
		Limit:      limit,
		Offset:     offset,
	}
	for _, s := range splitQuery(c.QueryParam("status")) {
		f.Statuses = append(f.Statuses, models.Status(s))
	}
	return f, nil
}

// List is the responder queue for a kind.
func (h *RequestHandler) List(c echo.Context) error {
	actor, ok := currentActor(c)
	if !ok {
		return unauthenticated(c)
	}
	kind, ok := kindParam(c)
	if !ok {
		return unknownKind(c)
	}
	f, err := h.listFilter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	page, err := h.engine.List(c.Request().Context(), actor, kind, f)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *RequestHandler) ListMine(c echo.Context) error {
	actor, ok := currentActor(c)
	if !ok {
		return unauthenticated(c)
	}
	kind, ok := kindParam(c)
	if !ok {
		return unknownKind(c)
	}
	f, err := h.listFilter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	page, err := h.engine.ListMine(c.Request().Context(), actor, kind, f)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *RequestHandler) Stats(c echo.Context) error {
	actor, ok := currentActor(c)
	if !ok {
		return unauthenticated(c)
	}
	kind, ok := kindParam(c)
	if !ok {
		return unknownKind(c)
	}

	stats, err := h.engine.Stats(c.Request().Context(), actor, kind)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *RequestHandler) Get(c echo.Context) error {
	actor, ok := currentActor(c)
	if !ok {
		return unauthenticated(c)
	}
	kind, ok := kindParam(c)
	if !ok {
		return unknownKind(c)
	}

	req, err := h.engine.Get(c.Request().Context(), actor, kind, c.Param("id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, req)
}

func (h *RequestHandler) Messages(c echo.Context) error {
	actor, ok := currentActor(c)
	if !ok {
		return unauthenticated(c)
	}
	kind, ok := kindParam(c)
	if !ok {
		return unknownKind(c)
	}

	messages, err := h.engine.Messages(c.Request().Context(), actor, kind, c.Param("id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, messages)
}

type appendMessageRequest struct {
	Text string `json:"text"`
}

func (h *RequestHandler) AppendMessage(c echo.Context) error {
	actor, ok := currentActor(c)
	if !ok {
		return unauthenticated(c)
	}
	kind, ok := kindParam(c)
	if !ok {
		return unknownKind(c)
	}
	var in appendMessageRequest
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.engine.AppendMessage(c.Request().Context(), actor, kind, c.Param("id"), in.Text)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return h.respond(c, http.StatusCreated, res)
}

func (h *RequestHandler) Assign(c echo.Context) error {
	actor, ok := currentActor(c)
	if !ok {
		return unauthenticated(c)
	}
	kind, ok := kindParam(c)
	if !ok {
		return unknownKind(c)
	}
	var in services.AssignInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.engine.Assign(c.Request().Context(), actor, kind, c.Param("id"), in)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return h.respond(c, http.StatusOK, res)
}

func (h *RequestHandler) UpdateStatus(c echo.Context) error {
	actor, ok := currentActor(c)
	if !ok {
		return unauthenticated(c)
	}
	kind, ok := kindParam(c)
	if !ok {
		return unknownKind(c)
	}
	var in services.StatusInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.engine.UpdateStatus(c.Request().Context(), actor, kind, c.Param("id"), in)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return h.respond(c, http.StatusOK, res)
}

func (h *RequestHandler) Rate(c echo.Context) error {
	actor, ok := currentActor(c)
	if !ok {
		return unauthenticated(c)
	}
	kind, ok := kindParam(c)
	if !ok {
		return unknownKind(c)
	}
	var in services.RateInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.engine.Rate(c.Request().Context(), actor, kind, c.Param("id"), in)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return h.respond(c, http.StatusOK, res)
}
