// internal/handler/errors.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response bodies are part of the public contract and must not change.
const (
	msgNoImage         = "No image file provided"
	msgPredictionError = "Error during prediction"
)

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error string `json:"error"`
}

// badRequest aborts with a 400 and the given message
func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: msg})
}

// internalError aborts with a 500 and the given message; callers log the cause
func internalError(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: msg})
}
