package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
	apperrors "github.com/kurihiro0119/repo-access-provisioner/internal/errors"
	"github.com/kurihiro0119/repo-access-provisioner/internal/provisioner"
)

// Handler handles API requests
type Handler struct {
	service provisioner.Service
}

// NewHandler creates a new API handler
func NewHandler(service provisioner.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// CreateRepositories provisions every request in the batch
// POST /api/repositories
func (h *Handler) CreateRepositories(c *gin.Context) {
	h.submit(c, domain.ActionCreate)
}

// DeleteRepositories deprovisions every request in the batch
// DELETE /api/repositories
func (h *Handler) DeleteRepositories(c *gin.Context) {
	h.submit(c, domain.ActionDelete)
}

func (h *Handler) submit(c *gin.Context, action domain.Action) {
	var req domain.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body: "+err.Error()))
		return
	}

	result, err := h.service.Submit(c.Request.Context(), provisioner.SourceAPI, action, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	// per-item failures are reported in the body
	c.JSON(http.StatusOK, result)
}

// GetNames returns the names a request would map to
// GET /api/names?package_manager=npm&app_id=app1&username=john.doe&shared=false
func (h *Handler) GetNames(c *gin.Context) {
	req := domain.ProvisioningRequest{
		PackageManager: c.Query("package_manager"),
		AppID:          c.Query("app_id"),
		Username:       c.Query("username"),
	}
	if req.PackageManager == "" {
		respondError(c, apperrors.NewBadRequestError("package_manager is required"))
		return
	}
	if s := c.Query("shared"); s != "" {
		shared, err := strconv.ParseBool(s)
		if err != nil {
			respondError(c, apperrors.NewBadRequestError("shared must be a boolean"))
			return
		}
		req.Shared = shared
	}

	c.JSON(http.StatusOK, gin.H{
		"data": h.service.Names(req),
	})
}

// ListBatches returns the most recent batches
// GET /api/batches?limit=20
func (h *Handler) ListBatches(c *gin.Context) {
	records, err := h.service.ListBatches(c.Request.Context(), parseLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": records,
	})
}

// GetBatch returns one recorded batch with its full result
// GET /api/batches/:id
func (h *Handler) GetBatch(c *gin.Context) {
	record, err := h.service.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": record,
	})
}

// GetRepositoryHistory returns the recorded outcomes for a repository
// GET /api/repositories/:name/history?limit=20
func (h *Handler) GetRepositoryHistory(c *gin.Context) {
	records, err := h.service.RepositoryHistory(c.Request.Context(), c.Param("name"), parseLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": records,
	})
}

// HealthCheck returns the health status
// GET /api/health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  "healthy",
	})
}

// parseLimit parses the limit query parameter
func parseLimit(c *gin.Context) int {
	limit := 20
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	return limit
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeUnauthorized:
			status = http.StatusUnauthorized
		case apperrors.ErrCodeBadRequest, apperrors.ErrCodeValidation:
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"success": false,
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error": gin.H{
			"code":    apperrors.ErrCodeInternal,
			"message": err.Error(),
		},
	})
}
