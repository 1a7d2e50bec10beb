package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ShareXConfig is the custom uploader descriptor ShareX imports.
type ShareXConfig struct {
	Name            string            `json:"Name"`
	Version         string            `json:"Version"`
	DestinationType string            `json:"DestinationType"`
	RequestMethod   string            `json:"RequestMethod"`
	RequestURL      string            `json:"RequestURL"`
	Body            string            `json:"Body"`
	FileFormName    string            `json:"FileFormName"`
	URL             string            `json:"URL"`
	DeletionURL     string            `json:"DeletionURL"`
	Headers         map[string]string `json:"Headers"`
	ErrorMessage    string            `json:"ErrorMessage"`
}

type ShareXHandler struct {
	uploadURL string
}

func NewShareXHandler(uploadURL string) *ShareXHandler {
	return &ShareXHandler{uploadURL: uploadURL}
}

func (h *ShareXHandler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, ShareXConfig{
		Name:            fmt.Sprintf("%s (File uploader)", c.Request.Host),
		Version:         "1.0.0",
		DestinationType: "ImageUploader, FileUploader",
		RequestMethod:   http.MethodPost,
		RequestURL:      h.uploadURL,
		Body:            "MultipartFormData",
		FileFormName:    "file",
		URL:             "$json:url$",
		DeletionURL:     "$json:delete_url$",
		Headers: map[string]string{
			"Authorization":           "YOUR-UPLOAD-PASSWORD-HERE",
			HeaderUseOriginalFilename: "1",
		},
		ErrorMessage: "$json:status$",
	})
}
