package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/FASALGAF00R/Campuscore-backend/middleware"
	"github.com/FASALGAF00R/Campuscore-backend/models"
	"github.com/FASALGAF00R/Campuscore-backend/services"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// StatusFor maps a service error code to its HTTP status.
func StatusFor(code services.Code) int {
	switch code {
	case services.CodeValidation:
		return http.StatusBadRequest
	case services.CodeNotAuthorized:
		return http.StatusForbidden
	case services.CodeNotFound:
		return http.StatusNotFound
	case services.CodeInvalidTransition, services.CodeStaleState, services.CodeAlreadyRated:
		return http.StatusConflict
	case services.CodeInvalidAssignee:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError never echoes the wrapped cause; persistence details go to the
// log only.
func writeError(c echo.Context, logger *zap.Logger, err error) error {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		svcErr = &services.Error{Code: services.CodePersistence, Message: "internal error", Err: err}
	}
	status := StatusFor(svcErr.Code)
	if status >= http.StatusInternalServerError {
		logger.Error("request_failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err))
	}
	return c.JSON(status, ErrorResponse{
		Code:    string(svcErr.Code),
		Message: svcErr.Message,
		Fields:  svcErr.Fields,
	})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Code: string(services.CodeValidation), Message: message})
}

func currentActor(c echo.Context) (services.Actor, bool) {
	return middleware.CurrentActor(c)
}

func unauthenticated(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{Code: "unauthenticated", Message: "authentication required"})
}

func kindParam(c echo.Context) (models.Kind, bool) {
	return models.ParseKind(c.Param("kind"))
}

func unknownKind(c echo.Context) error {
	return c.JSON(http.StatusNotFound, ErrorResponse{
		Code:    string(services.CodeNotFound),
		Message: "unknown request kind " + c.Param("kind"),
	})
}

// pagination reads limit and offset; services clamp the values.
func pagination(c echo.Context) (limit, offset int, err error) {
	if v := c.QueryParam("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, errors.New("limit must be a non-negative integer")
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

func splitQuery(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
