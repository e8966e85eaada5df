package controllers

import (
	"time"

	"academianet/apperrors"
	"academianet/logging"
	"academianet/middlewares"

	"github.com/gin-gonic/gin"
)

// respondError writes err as {message, error, time, requestId} with the status
// its kind maps to. fallback is used when err carries no user-facing message.
func respondError(c *gin.Context, err error, fallback string) {
	status := apperrors.StatusCode(err)
	if status >= 500 {
		logging.FromContext(c.Request.Context(), nil).Error("request error", "error", err)
	}
	c.JSON(status, gin.H{
		"message":   apperrors.MessageOf(err, fallback),
		"error":     apperrors.KindOf(err).String() + ": " + err.Error(),
		"time":      time.Now().UTC().Format(time.RFC3339),
		"requestId": middlewares.GetRequestID(c),
	})
}

func badRequest(c *gin.Context, message string) {
	respondError(c, apperrors.Validation(message), message)
}
