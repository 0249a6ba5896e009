package domain

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/domainstack/api/internal/handler"
	"github.com/domainstack/api/internal/middleware"
	"github.com/domainstack/api/internal/model"
	domainService "github.com/domainstack/api/internal/service/domain"
)

type Handler struct {
	service *domainService.Service
}

func NewHandler(service *domainService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	domains := r.Group("/domains")
	{
		domains.POST("", h.AddDomain)
		domains.GET("", h.ListDomains)
		domains.DELETE("/:id", h.ArchiveDomain)
		domains.POST("/:id/verify", h.VerifyDomain)
		domains.GET("/:id/instructions", h.GetInstructions)
		domains.PATCH("/:id/notifications", h.UpdateNotificationOverrides)
	}
}

type addDomainRequest struct {
	Domain string `json:"domain" binding:"required"`
}

func (h *Handler) AddDomain(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("not authenticated"))
		return
	}

	var req addDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	result, err := h.service.AddDomain(c.Request.Context(), userID, req.Domain)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}

	status := http.StatusCreated
	if result.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, handler.NewSuccessResponse(result))
}

func (h *Handler) ListDomains(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("not authenticated"))
		return
	}

	views, err := h.service.ListDomains(c.Request.Context(), userID)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(views))
}

type verifyDomainRequest struct {
	Method *model.VerificationMethod `json:"method,omitempty"`
}

func (h *Handler) VerifyDomain(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("not authenticated"))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid domain ID"))
		return
	}

	var req verifyDomainRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
			return
		}
	}

	result, err := h.service.VerifyDomain(c.Request.Context(), userID, id, req.Method)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}

	// Negative results are 200s with an inline error message; the check
	// ran fine, the evidence just wasn't there.
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) GetInstructions(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("not authenticated"))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid domain ID"))
		return
	}

	instructions, err := h.service.Instructions(c.Request.Context(), userID, id)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(instructions))
}

func (h *Handler) ArchiveDomain(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("not authenticated"))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid domain ID"))
		return
	}

	if err := h.service.ArchiveDomain(c.Request.Context(), userID, id); err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

type overridesRequest struct {
	Overrides model.NotificationOverrides `json:"overrides" binding:"required"`
}

func (h *Handler) UpdateNotificationOverrides(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("not authenticated"))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid domain ID"))
		return
	}

	var req overridesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.service.UpdateNotificationOverrides(c.Request.Context(), userID, id, req.Overrides); err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}
