package benefit

import (
	"errors"
	"net/http"

	"github.com/abduss/benefits/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RegisterRoutes mounts benefit catalog endpoints onto the router.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.GET("/benefits", handler.listBenefits)
	group.GET("/benefits/:benefitID", handler.getBenefit)
	group.POST("/benefits", auth.RequireAdmin(), handler.createBenefit)
	group.DELETE("/benefits/:benefitID", auth.RequireAdmin(), handler.deactivateBenefit)
}

type httpHandler struct {
	service *Service
}

type createBenefitRequest struct {
	Name              string   `json:"name" binding:"required,max=128"`
	Description       *string  `json:"description" binding:"omitempty,max=1024"`
	Category          string   `json:"category" binding:"omitempty,oneof=fixed tiered"`
	DocumentsRequired []string `json:"documents_required" binding:"omitempty,max=10"`
}

func (h *httpHandler) createBenefit(c *gin.Context) {
	adminID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req createBenefitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := h.service.CreateBenefit(c.Request.Context(), adminID, CreateInput{
		Name:              req.Name,
		Description:       req.Description,
		Category:          Category(req.Category),
		DocumentsRequired: req.DocumentsRequired,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrBenefitNameExists):
			c.JSON(http.StatusConflict, gin.H{"error": "benefit name already exists"})
		case errors.Is(err, ErrInvalidBenefit):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create benefit"})
		}
		return
	}

	c.JSON(http.StatusCreated, b)
}

func (h *httpHandler) listBenefits(c *gin.Context) {
	_, user, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	includeInactive := user.IsAdmin && c.Query("include_inactive") == "true"
	benefits, err := h.service.ListBenefits(c.Request.Context(), includeInactive)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list benefits"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"benefits": benefits})
}

func (h *httpHandler) getBenefit(c *gin.Context) {
	if _, _, ok := auth.RequireUser(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	benefitID, err := uuid.Parse(c.Param("benefitID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid benefit id"})
		return
	}

	b, err := h.service.GetBenefit(c.Request.Context(), benefitID)
	if err != nil {
		if errors.Is(err, ErrBenefitNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "benefit not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch benefit"})
		return
	}

	c.JSON(http.StatusOK, b)
}

func (h *httpHandler) deactivateBenefit(c *gin.Context) {
	benefitID, err := uuid.Parse(c.Param("benefitID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid benefit id"})
		return
	}

	if err := h.service.DeactivateBenefit(c.Request.Context(), benefitID); err != nil {
		switch {
		case errors.Is(err, ErrBenefitNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "benefit not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to deactivate benefit"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}
