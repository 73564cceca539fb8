package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/temcen/shoprec/internal/validation"
)

const maxBodyBytes = 64 << 10

// ValidateBody checks the JSON request body against a named schema and
// restores it for the handler.
func ValidateBody(validator *validation.SchemaValidator, schemaName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		bodyBytes, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
		if err != nil {
			sendValidationError(c, "BODY_READ_ERROR", "Failed to read request body")
			return
		}
		if len(bodyBytes) > maxBodyBytes {
			sendValidationError(c, "BODY_TOO_LARGE", "Request body is too large")
			return
		}
		if len(bodyBytes) == 0 {
			sendValidationError(c, "EMPTY_BODY", "Request body is required")
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

		result := validator.ValidateJSON(schemaName, bodyBytes)
		if !result.Valid {
			apiError := result.ToAPIError()
			if errorObj, ok := apiError["error"].(map[string]interface{}); ok {
				errorObj["path"] = c.Request.URL.Path
				errorObj["request_id"] = c.GetString("request_id")
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, apiError)
			return
		}

		c.Next()
	}
}

func sendValidationError(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
