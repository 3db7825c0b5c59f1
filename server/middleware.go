package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/existflow/ironsync/internal/logger"
)

// authMiddleware checks for valid session token
func (s *Server) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// Get token from Authorization header
		auth := c.Request().Header.Get("Authorization")
		if auth == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authorization required", "code": "unauthorized"})
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid authorization format", "code": "unauthorized"})
		}

		// Validate session
		userID, expiresAt, err := s.repo.Session(c.Request().Context(), token)
		if errors.Is(err, ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token", "code": "unauthorized"})
		}
		if err != nil {
			return err
		}

		if time.Now().After(expiresAt) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "token expired", "code": "token_expired"})
		}

		// Add user ID to context
		c.Set("user_id", userID)
		return next(c)
	}
}

// apiError is a handler failure with a status, message and machine code
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return e.Message
}

func badRequest(code, msg string) error {
	return &apiError{Status: http.StatusBadRequest, Code: code, Message: msg}
}

func forbidden() error {
	return &apiError{Status: http.StatusForbidden, Code: "forbidden", Message: "not a member of this team"}
}

// errorHandler renders every failure as {"error": ..., "code": ...}
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	body := map[string]string{"error": "internal error", "code": "internal"}

	var ae *apiError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &ae):
		status = ae.Status
		body = map[string]string{"error": ae.Message, "code": ae.Code}
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
		body = map[string]string{"error": "not found", "code": "not_found"}
	case errors.Is(err, ErrConflict):
		status = http.StatusConflict
		body = map[string]string{"error": err.Error(), "code": "conflict"}
	case errors.As(err, &he):
		status = he.Code
		body = map[string]string{"error": http.StatusText(he.Code), "code": "http"}
		if msg, ok := he.Message.(string); ok {
			body["error"] = msg
		}
	default:
		s.log.Error("Request failed", logger.F("uri", c.Request().RequestURI), logger.F("error", err))
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}

func userID(c echo.Context) string {
	id, _ := c.Get("user_id").(string)
	return id
}
