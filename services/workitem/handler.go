package workitem

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"agentplane/pkg/db/pagination"
	"agentplane/pkg/errutil"
)

type HTTPHandler struct {
	svc *Service
}

func NewHTTPHandler(svc *Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

func RegisterRoutes(r *gin.Engine, h *HTTPHandler) {
	v1 := r.Group("/v1/work-items")
	v1.GET("/stats", h.Stats)
	v1.POST("", h.Submit)
	v1.GET("", h.List)
	v1.GET("/:id", h.Get)
	v1.POST("/:id/cancel", h.Cancel)
	v1.POST("/:id/confirm", h.Confirm)
	v1.POST("/:id/execute", h.ForceExecute)
}

func (h *HTTPHandler) Submit(c *gin.Context) {
	var in SubmitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	item, err := h.svc.Submit(c.Request.Context(), in)
	if err != nil {
		_ = c.Error(errutil.ValidationFailed("failed to submit work item", errutil.WithErr(err)))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":     item.ID,
		"status": item.Status,
	})
}

func (h *HTTPHandler) Get(c *gin.Context) {
	item, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(mapStoreError(err))
		return
	}

	c.JSON(http.StatusOK, item)
}

func (h *HTTPHandler) List(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", errutil.WithErr(err)))
		return
	}

	filter := ListFilter{
		OwnerID:    c.Query("owner_id"),
		Status:     Status(c.Query("status")),
		Kind:       Kind(c.Query("kind")),
		Pagination: page,
	}

	items, info, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(errutil.Internal("failed to list work items", errutil.WithErr(err)))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"work_items": items,
		"page":       info,
	})
}

func (h *HTTPHandler) Cancel(c *gin.Context) {
	item, err := h.svc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(mapStoreError(err))
		return
	}

	c.JSON(http.StatusOK, item)
}

func (h *HTTPHandler) Confirm(c *gin.Context) {
	item, err := h.svc.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(mapStoreError(err))
		return
	}

	c.JSON(http.StatusOK, item)
}

func (h *HTTPHandler) ForceExecute(c *gin.Context) {
	item, err := h.svc.ForceExecute(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(mapStoreError(err))
		return
	}

	c.JSON(http.StatusOK, item)
}

func (h *HTTPHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(errutil.Internal("failed to aggregate stats", errutil.WithErr(err)))
		return
	}

	c.JSON(http.StatusOK, stats)
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return errutil.NotFound("work item not found", errutil.WithErr(err))
	case errors.Is(err, ErrNotCancellable),
		errors.Is(err, ErrNotPending),
		errors.Is(err, ErrClaimConflict):
		return errutil.Conflict("work item state does not allow this operation", errutil.WithErr(err))
	case errors.Is(err, ErrConfirmationRequired):
		return errutil.UnprocessableEntity("work item requires confirmation", errutil.WithErr(err))
	default:
		return errutil.Internal("work item operation failed", errutil.WithErr(err))
	}
}
