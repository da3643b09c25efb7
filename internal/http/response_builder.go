package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Kind  string `json:"kind"`
}

// statusFor maps the domain error taxonomy onto HTTP.
func statusFor(err error) (int, string) {
	switch {
	case core.IsValidation(err):
		return http.StatusBadRequest, log.ErrorTypeValidation
	case core.IsNotFound(err):
		return http.StatusNotFound, log.ErrorTypeNotFound
	case core.IsConflict(err):
		return http.StatusConflict, log.ErrorTypeConflict
	default:
		return http.StatusInternalServerError, log.ErrorTypeInternal
	}
}

// writeError answers with the mapped status. Internal errors get a generic
// message; the detail only goes to the log.
func writeError(c *gin.Context, err error) {
	status, kind := statusFor(err)
	resp := errorResponse{Error: err.Error(), Kind: kind}

	var ve *core.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	if status == http.StatusInternalServerError {
		resp.Error = "internal error"
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, field, reason string) {
	writeError(c, core.NewValidationError(field, nil, reason))
}
