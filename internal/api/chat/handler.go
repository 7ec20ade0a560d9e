package chat

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/liliang-cn/storerouter/internal/domain"
	"go.uber.org/zap"
)

// Pipeline turns inbound chat traffic into replies
type Pipeline interface {
	Handle(ctx context.Context, in domain.Inbound) *domain.Reply
	HandleFile(ctx context.Context, in domain.InboundFile) *domain.Reply
}

// ExportOpener resolves a rendered export by file name
type ExportOpener interface {
	Open(name string) (string, error)
}

// Handler is the chat transport webhook
type Handler struct {
	pipeline  Pipeline
	exports   ExportOpener
	uploadDir string
	logger    *zap.Logger
}

// NewHandler creates a new chat handler. Received files are staged in uploadDir.
func NewHandler(pipeline Pipeline, exports ExportOpener, uploadDir string, logger *zap.Logger) *Handler {
	return &Handler{
		pipeline:  pipeline,
		exports:   exports,
		uploadDir: uploadDir,
		logger:    logger.Named("chat"),
	}
}

// RegisterRoutes registers chat routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/message", h.Message)
	r.POST("/file", h.File)
	r.GET("/exports/:name", h.Export)
}

// AttachmentResponse points the transport at a downloadable export
type AttachmentResponse struct {
	Name   string `json:"name"`
	Format string `json:"format"`
	URL    string `json:"url"`
}

// ReplyResponse is the wire form of a pipeline reply
type ReplyResponse struct {
	Messages    []string             `json:"messages"`
	Choices     []domain.Choice      `json:"choices,omitempty"`
	Attachments []AttachmentResponse `json:"attachments,omitempty"`
}

// Message handles one text message
func (h *Handler) Message(c *gin.Context) {
	var req domain.Inbound
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply := h.pipeline.Handle(c.Request.Context(), req)
	c.JSON(http.StatusOK, toResponse(reply))
}

// File handles one received document
func (h *Handler) File(c *gin.Context) {
	userID, err := strconv.ParseInt(c.PostForm("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	path := filepath.Join(h.uploadDir, uuid.New().String()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, path); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			h.logger.Warn("failed to remove staged upload", zap.String("path", path), zap.Error(err))
		}
	}()

	reply := h.pipeline.HandleFile(c.Request.Context(), domain.InboundFile{
		UserID:   userID,
		Caption:  c.PostForm("caption"),
		Path:     path,
		Filename: filepath.Base(file.Filename),
		Size:     file.Size,
	})
	c.JSON(http.StatusOK, toResponse(reply))
}

// Export downloads a rendered export
func (h *Handler) Export(c *gin.Context) {
	name := c.Param("name")
	path, err := h.exports.Open(name)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, domain.ErrInvalidRequest):
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.FileAttachment(path, name)
}

func toResponse(reply *domain.Reply) ReplyResponse {
	resp := ReplyResponse{Messages: []string{}}
	if reply == nil {
		return resp
	}
	if reply.Messages != nil {
		resp.Messages = reply.Messages
	}
	resp.Choices = reply.Choices
	for _, a := range reply.Attachments {
		resp.Attachments = append(resp.Attachments, AttachmentResponse{
			Name:   a.Name,
			Format: a.Format,
			URL:    "/api/chat/exports/" + url.PathEscape(a.Name),
		})
	}
	return resp
}
