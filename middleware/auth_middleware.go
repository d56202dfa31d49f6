package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/FASALGAF00R/Campuscore-backend/models"
	"github.com/FASALGAF00R/Campuscore-backend/services"
	"github.com/labstack/echo/v4"
)

const userContextKey = "user"

// UserLookup resolves the user named by a token.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

func errorBody(code, message string) map[string]string {
	return map[string]string{"code": code, "message": message}
}

// BearerToken reads the token from the Authorization header, falling back
// to the token query parameter for websocket clients.
func BearerToken(c echo.Context) (string, bool) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", false
		}
		return parts[1], true
	}
	token := strings.TrimSpace(strings.TrimPrefix(c.QueryParam("token"), "Bearer "))
	return token, token != ""
}

func AuthMiddleware(authService *services.AuthService, users UserLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, ok := BearerToken(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorBody("unauthenticated", "missing or malformed authorization token"))
			}

			claims, err := authService.ValidateToken(tokenString)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorBody("unauthenticated", "invalid token"))
			}
			user, err := users.FindByID(c.Request().Context(), claims.UserID)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorBody("unauthenticated", "user not found"))
			}
			if !user.IsActive {
				return c.JSON(http.StatusForbidden, errorBody(string(services.CodeNotAuthorized), "account is not active"))
			}

			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

// RequireRoles rejects users whose role is not listed. It must run after
// AuthMiddleware.
func RequireRoles(roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := CurrentUser(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorBody("unauthenticated", "authentication required"))
			}
			for _, r := range roles {
				if user.Role == r {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, errorBody(string(services.CodeNotAuthorized), "role "+string(user.Role)+" is not allowed here"))
		}
	}
}

func CurrentUser(c echo.Context) (*models.User, bool) {
	user, ok := c.Get(userContextKey).(*models.User)
	return user, ok && user != nil
}

// CurrentActor is the authenticated user as a command actor.
func CurrentActor(c echo.Context) (services.Actor, bool) {
	user, ok := CurrentUser(c)
	if !ok {
		return services.Actor{}, false
	}
	return services.Actor{ID: user.ID, Role: user.Role}, true
}
