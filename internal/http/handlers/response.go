// Package handlers provides the HTTP handlers of the contact API.
//
// Every response carries a boolean "success". Failures use ErrorResponse with
// a stable code from errors.go; 5xx failures are logged through the
// request-scoped logger before the envelope is written.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/cis-contact/internal/http/middleware"
)

// ErrorResponse is the failure envelope returned by all endpoints.
type ErrorResponse struct {
	// Always false
	Success bool `json:"success" example:"false"`
	// Human-readable message, safe to show to visitors
	Error string `json:"error" example:"Todos los campos son obligatorios."`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"bad_request"`
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// SuccessResponse acknowledges an accepted submission.
type SuccessResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"Mensaje enviado y guardado con éxito."`
}

// fail aborts the request with an ErrorResponse. Server errors are logged with
// the request-scoped logger; cause, when non-nil, is logged but never sent.
func fail(c *gin.Context, status int, code, msg string, cause ...error) {
	resp := ErrorResponse{
		Success:   false,
		Error:     msg,
		Code:      code,
		RequestID: c.Writer.Header().Get("X-Request-ID"),
	}

	if status >= http.StatusInternalServerError {
		ev := middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code)
		if len(cause) > 0 && cause[0] != nil {
			ev = ev.Err(cause[0])
		}
		ev.Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
