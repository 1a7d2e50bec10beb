package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	MessageInvalidFile     = "Invalid file"
	MessageInvalidFileType = "Invalid file type"
	MessageFileTooLarge    = "File too large"
	MessageFileDeleted     = "File deleted"
	MessageSaveFailed      = "Failed to save file"
)

// StatusResponse is the body of every non-file response that is not an
// upload result. ShareX reads "status" as the error message.
type StatusResponse struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
}

func respond(c *gin.Context, code int, message string) {
	if message == "" {
		message = http.StatusText(code)
	}
	c.JSON(code, StatusResponse{Code: code, Status: message})
}

// NotFound and MethodNotAllowed keep unknown routes in the JSON format.
func NotFound(c *gin.Context) {
	respond(c, http.StatusNotFound, "")
}

func MethodNotAllowed(c *gin.Context) {
	respond(c, http.StatusMethodNotAllowed, "")
}
