package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ondrasimku/upload-service-go/internal/auth"
	"github.com/ondrasimku/upload-service-go/internal/http/middleware"
	"github.com/ondrasimku/upload-service-go/internal/notify"
	"github.com/ondrasimku/upload-service-go/internal/upload"
)

const (
	HeaderUseOriginalFilename = "X-Use-Original-Filename"

	// multipart framing on top of the file itself
	multipartOverhead = 1 << 20
)

type UploadHandler struct {
	service    *upload.Service
	dispatcher *notify.Dispatcher
	maxSize    int64
	logger     *slog.Logger
}

func NewUploadHandler(service *upload.Service, dispatcher *notify.Dispatcher, maxSize int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		service:    service,
		dispatcher: dispatcher,
		maxSize:    maxSize,
		logger:     logger,
	}
}

type UploadResponse struct {
	URL       string `json:"url"`
	DeleteURL string `json:"delete_url"`
}

func (h *UploadHandler) Upload(c *gin.Context) {
	if h.maxSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSize+multipartOverhead)
	}

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("Request body too large", "limit", tooLarge.Limit)
			middleware.RecordOperation("upload", "too_large")
			respond(c, http.StatusRequestEntityTooLarge, MessageFileTooLarge)
			return
		}
		h.logger.Warn("Failed to get file from form", "error", err)
		middleware.RecordOperation("upload", "invalid")
		respond(c, http.StatusBadRequest, MessageInvalidFile)
		return
	}

	if h.maxSize > 0 && file.Size > h.maxSize {
		h.logger.Warn("File too large", "size", file.Size, "max", h.maxSize)
		middleware.RecordOperation("upload", "too_large")
		respond(c, http.StatusRequestEntityTooLarge, MessageFileTooLarge)
		return
	}

	src, err := file.Open()
	if err != nil {
		h.logger.Error("Failed to open uploaded file", "error", err)
		middleware.RecordOperation("upload", "invalid")
		respond(c, http.StatusBadRequest, MessageInvalidFile)
		return
	}
	defer src.Close()

	uploaded, err := h.service.Upload(c.Request.Context(), upload.Request{
		Body:                src,
		Filename:            file.Filename,
		Size:                file.Size,
		UseOriginalFilename: parseFlag(c.GetHeader(HeaderUseOriginalFilename)),
	})
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrInvalidUpload):
			middleware.RecordOperation("upload", "invalid")
			respond(c, http.StatusBadRequest, MessageInvalidFile)
		case errors.Is(err, upload.ErrDisallowedType):
			middleware.RecordOperation("upload", "disallowed")
			respond(c, http.StatusUnprocessableEntity, MessageInvalidFileType)
		default:
			h.logger.Error("Failed to save file", "filename", file.Filename, "error", err)
			middleware.RecordOperation("upload", "error")
			respond(c, http.StatusInternalServerError, MessageSaveFailed)
		}
		return
	}

	middleware.RecordOperation("upload", "success")
	if authContext, ok := auth.GetAuthContext(c); ok {
		h.logger.Info("Upload accepted", "filename", uploaded.StorageFilename,
			"subject", authContext.Subject, "method", authContext.Method)
	}
	middleware.UploadedBytes.Add(float64(uploaded.Size))

	if h.dispatcher != nil {
		h.dispatcher.Dispatch(notify.FileEmbed(uploaded, time.Now()))
	}

	c.JSON(http.StatusOK, UploadResponse{
		URL:       uploaded.URL,
		DeleteURL: uploaded.DeletionURL,
	})
}

func (h *UploadHandler) Delete(c *gin.Context) {
	tag := c.Param("hmac_hash")
	filename := c.Param("filename")

	err := h.service.Delete(c.Request.Context(), tag, filename)
	switch {
	case err == nil:
		middleware.RecordOperation("delete", "success")
		respond(c, http.StatusOK, MessageFileDeleted)
	case errors.Is(err, upload.ErrNotFound):
		h.logger.Warn("Rejected delete request", "filename", filename)
		middleware.RecordOperation("delete", "not_found")
		respond(c, http.StatusNotFound, "")
	case errors.Is(err, upload.ErrAlreadyDeleted):
		middleware.RecordOperation("delete", "gone")
		respond(c, http.StatusGone, "")
	default:
		h.logger.Error("Failed to delete file", "filename", filename, "error", err)
		middleware.RecordOperation("delete", "error")
		respond(c, http.StatusInternalServerError, "")
	}
}

func (h *UploadHandler) GetFile(c *gin.Context) {
	filename := c.Param("filename")

	f, info, err := h.service.Open(c.Request.Context(), filename)
	if err != nil {
		if !errors.Is(err, upload.ErrNotFound) {
			h.logger.Error("Failed to open file", "filename", filename, "error", err)
			respond(c, http.StatusInternalServerError, "")
			return
		}
		respond(c, http.StatusNotFound, "")
		return
	}
	defer f.Close()

	if info.ContentType != "" {
		c.Header("Content-Type", info.ContentType)
	}
	c.Header("X-Content-Type-Options", "nosniff")
	http.ServeContent(c.Writer, c.Request, info.Name, info.ModTime, f)
}

// parseFlag treats any non-zero integer as true; anything unparsable is false.
func parseFlag(v string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	return err == nil && n != 0
}
