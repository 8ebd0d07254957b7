package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

// RecordEvent enqueues an account event describing the outcome of the
// request. Request bodies are never captured.
func RecordEvent(recorder ports.EventRecorder, eventType domain.EventType) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if recorder == nil {
			return next
		}
		return func(c echo.Context) error {
			err := next(c)
			if err != nil {
				// Render the error now so the final status is known.
				c.Error(err)
			}

			event := domain.AccountEvent{
				Type:       eventType,
				Method:     c.Request().Method,
				URI:        c.Path(),
				StatusCode: c.Response().Status,
				ClientIP:   c.RealIP(),
				CreatedAt:  time.Now().UTC(),
			}
			if userID, ok := c.Get("user_id").(string); ok {
				event.UserID = userID
			}
			if err != nil {
				event.Error = err.Error()
			}
			recorder.Enqueue(event)
			return nil
		}
	}
}
