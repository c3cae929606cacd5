package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tablestack/internal/pos/apperr"
)

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError maps the core error taxonomy onto HTTP statuses. Every error
// is surfaced inline and retryable; nothing fails silently.
func respondError(c *gin.Context, err error) {
	var (
		validation *apperr.ValidationError
		state      *apperr.StateError
		conflict   *apperr.ConflictError
		external   *apperr.ExternalDependencyError
		notFound   *apperr.NotFoundError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.As(err, &state):
		status = http.StatusConflict
	case errors.As(err, &conflict):
		status = http.StatusConflict
	case errors.As(err, &external):
		status = http.StatusBadGateway
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	}

	c.JSON(status, gin.H{
		"success": false,
		"message": err.Error(),
	})
}
