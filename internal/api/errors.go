package api

import (
	"errors"
	"net/http"

	"checkout-service/internal/apperr"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByKind = map[error]int{
	apperr.ErrValidation:         http.StatusBadRequest,
	apperr.ErrNotFound:           http.StatusNotFound,
	apperr.ErrInsufficientStock:  http.StatusConflict,
	apperr.ErrInsufficientPoints: http.StatusConflict,
	apperr.ErrPaymentMismatch:    http.StatusBadRequest,
	apperr.ErrForbidden:          http.StatusForbidden,
	apperr.ErrUnauthenticated:    http.StatusUnauthorized,
	apperr.ErrConflict:           http.StatusConflict,
	apperr.ErrPersistence:        http.StatusInternalServerError,
}

// respondError writes err using its classification.
func respondError(c *gin.Context, err error) {
	kind := apperr.Kind(err)
	status := statusByKind[kind]

	if errors.Is(kind, apperr.ErrPersistence) {
		util.Named("api").Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error":   kind.Error(),
		"message": apperr.Message(err),
		"details": apperr.Details(err),
	})
}

// badRequest reports a malformed request before it reaches a service.
func badRequest(c *gin.Context, message string, err error) {
	details := gin.H{}
	if err != nil {
		details["cause"] = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   apperr.ErrValidation.Error(),
		"message": message,
		"details": details,
	})
}
