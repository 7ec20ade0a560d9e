package admin

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/liliang-cn/storerouter/internal/service"
)

// Service is the admin surface the handler depends on
type Service interface {
	CreateStore(ctx context.Context, req *domain.CreateStoreRequest) (*domain.Store, error)
	GetStore(ctx context.Context, id string) (*domain.Store, error)
	ListStores(ctx context.Context) ([]*domain.Store, error)
	UpdateStore(ctx context.Context, id string, req *domain.UpdateStoreRequest) (*domain.Store, error)
	DeleteStore(ctx context.Context, id string) error
	ImportStores(ctx context.Context) ([]*domain.Store, error)
	UploadDocument(ctx context.Context, id string, file *multipart.FileHeader) (*domain.Store, error)
	SyncStore(ctx context.Context, id string) (*service.IngestReport, error)
	SweepMemory(ctx context.Context) (int, error)
	GetStats(ctx context.Context) (*domain.Stats, error)
}

// Handler handles admin API requests
type Handler struct {
	adminService Service
}

// NewHandler creates a new admin handler
func NewHandler(adminService Service) *Handler {
	return &Handler{adminService: adminService}
}

// RegisterRoutes registers admin routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	stores := r.Group("/stores")
	{
		stores.POST("", h.CreateStore)
		stores.GET("", h.ListStores)
		stores.POST("/import", h.ImportStores)
		stores.GET("/:id", h.GetStore)
		stores.PUT("/:id", h.UpdateStore)
		stores.DELETE("/:id", h.DeleteStore)
		stores.POST("/:id/documents", h.UploadDocument)
		stores.POST("/:id/sync", h.SyncStore)
	}

	r.POST("/memory/sweep", h.SweepMemory)
	r.GET("/stats", h.GetStats)
}

// Store handlers

func (h *Handler) CreateStore(c *gin.Context) {
	var req domain.CreateStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	store, err := h.adminService.CreateStore(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, store)
}

func (h *Handler) ListStores(c *gin.Context) {
	stores, err := h.adminService.ListStores(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stores": stores})
}

func (h *Handler) GetStore(c *gin.Context) {
	store, err := h.adminService.GetStore(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "store not found"})
		return
	}

	c.JSON(http.StatusOK, store)
}

func (h *Handler) UpdateStore(c *gin.Context) {
	var req domain.UpdateStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	store, err := h.adminService.UpdateStore(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, store)
}

func (h *Handler) DeleteStore(c *gin.Context) {
	if err := h.adminService.DeleteStore(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "store deleted"})
}

// ImportStores registers backend stores missing from the catalog
func (h *Handler) ImportStores(c *gin.Context) {
	imported, err := h.adminService.ImportStores(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"imported": imported, "count": len(imported)})
}

// Document handlers

func (h *Handler) UploadDocument(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	store, err := h.adminService.UploadDocument(c.Request.Context(), c.Param("id"), file)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, store)
}

func (h *Handler) SyncStore(c *gin.Context) {
	report, err := h.adminService.SyncStore(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"uploaded": report.Uploaded,
		"failed":   report.Failed,
		"summary":  report.Summary(),
	})
}

// Housekeeping handlers

func (h *Handler) SweepMemory(c *gin.Context) {
	removed, err := h.adminService.SweepMemory(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.adminService.GetStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// respondError maps domain errors to HTTP status codes
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateName):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
