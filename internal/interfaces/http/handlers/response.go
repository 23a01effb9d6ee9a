// internal/interfaces/http/handlers/response.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/interfaces/http/middleware"
	"github.com/your-org/storefront-backend/internal/pkg/apperr"
)

const securityMessage = "Request could not be verified"

// respondError maps a classified error to its HTTP status and writes the
// error body. Unclassified errors become 500 without exposing the cause.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	// Sentinels the order writer returns without wrapping
	switch {
	case errors.Is(err, order.ErrInvalidStatus), errors.Is(err, order.ErrInvalidPaymentStatus):
		if _, ok := apperr.As(err); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "VALIDATION_FAILED"})
			return
		}
	}

	appErr, ok := apperr.As(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
		return
	}

	body := gin.H{"error": appErr.Message, "code": appErr.Code}
	var status int
	switch appErr.Kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
		if appErr.Details != nil {
			body["details"] = appErr.Details
		}
	case apperr.KindSecurity:
		status = http.StatusBadRequest
		body["error"] = securityMessage
	case apperr.KindUpstream:
		status = http.StatusBadGateway
		if appErr.Retryable {
			status = http.StatusServiceUnavailable
			c.Header("Retry-After", "5")
		}
		body["retryable"] = appErr.Retryable
	default:
		status = http.StatusInternalServerError
		body = gin.H{"error": "Internal server error"}
	}
	c.JSON(status, body)
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request data",
		"details": err.Error(),
	})
}

// currentUser returns the authenticated owner, writing 401 when absent
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return uuid.Nil, false
	}
	return userID, true
}

func uuidParam(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + label,
		})
		return uuid.Nil, false
	}
	return id, true
}
