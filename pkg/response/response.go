package response

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wamda.app/notifier/pkg/apperror"
	"wamda.app/notifier/pkg/logger"
)

// GetUserID retrieves the authenticated recipient id from the context
func GetUserID(c *gin.Context) (int64, error) {
	v, exists := c.Get("user_id")
	if !exists {
		return 0, apperror.ErrUnauthorized
	}

	switch id := v.(type) {
	case int64:
		return id, nil
	case string:
		parsed, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return 0, apperror.ErrUnauthorized
		}
		return parsed, nil
	default:
		return 0, apperror.ErrUnauthorized
	}
}

// Error writes a standardized error response
func Error(c *gin.Context, err error) {
	code := apperror.MapErrorToStatus(err)

	// Log internal errors
	if code == http.StatusInternalServerError {
		logger.Get().Error("internal error", zap.Error(err))
	}

	c.JSON(code, gin.H{"error": err.Error()})
}
