package request

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/abduss/benefits/internal/auth"
	"github.com/abduss/benefits/internal/benefit"
	"github.com/abduss/benefits/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegisterRoutes mounts employee and administrator request endpoints.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.POST("/requests", handler.submit)
	group.GET("/requests", handler.listMine)
	group.GET("/requests/:requestID", handler.get)
	group.DELETE("/requests/:requestID", handler.cancel)

	admin := group.Group("/admin", auth.RequireAdmin())
	admin.GET("/requests", handler.listAll)
	admin.GET("/requests/stats", handler.stats)
	admin.PATCH("/requests/:requestID/review", handler.review)
}

// ActorFromContext builds the Actor for the authenticated caller.
func ActorFromContext(c *gin.Context) (Actor, bool) {
	userID, user, ok := auth.RequireUser(c)
	if !ok {
		return Actor{}, false
	}
	return Actor{ID: userID, IsAdmin: user.IsAdmin}, true
}

type httpHandler struct {
	service *Service
}

type submitRequest struct {
	BenefitID string `json:"benefit_id" binding:"required,uuid"`
}

type reviewRequest struct {
	Status          string `json:"status" binding:"required"`
	Comment         string `json:"comment" binding:"max=2000"`
	RejectionReason string `json:"rejection_reason" binding:"max=2000"`
}

func (h *httpHandler) submit(c *gin.Context) {
	actor, ok := ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body submitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	benefitID, _ := uuid.Parse(body.BenefitID)

	req, err := h.service.Submit(c.Request.Context(), actor, benefitID)
	if err != nil {
		writeError(c, err, "failed to submit request")
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (h *httpHandler) listMine(c *gin.Context) {
	actor, ok := ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	requests, err := h.service.ListMine(c.Request.Context(), actor, limit)
	if err != nil {
		writeError(c, err, "failed to list requests")
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

func (h *httpHandler) get(c *gin.Context) {
	actor, ok := ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	requestID, err := uuid.Parse(c.Param("requestID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	req, err := h.service.Get(c.Request.Context(), actor, requestID)
	if err != nil {
		writeError(c, err, "failed to fetch request")
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *httpHandler) cancel(c *gin.Context) {
	actor, ok := ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	requestID, err := uuid.Parse(c.Param("requestID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	if err := h.service.Cancel(c.Request.Context(), actor, requestID); err != nil {
		writeError(c, err, "failed to cancel request")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) listAll(c *gin.Context) {
	actor, ok := ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	requests, err := h.service.ListAll(c.Request.Context(), actor, Status(c.Query("status")))
	if err != nil {
		writeError(c, err, "failed to list requests")
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

func (h *httpHandler) stats(c *gin.Context) {
	actor, ok := ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), actor)
	if err != nil {
		writeError(c, err, "failed to fetch request statistics")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *httpHandler) review(c *gin.Context) {
	actor, ok := ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	requestID, err := uuid.Parse(c.Param("requestID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	var body reviewRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.service.Review(c.Request.Context(), actor, requestID, ReviewInput{
		Status:          Status(body.Status),
		Comment:         body.Comment,
		RejectionReason: body.RejectionReason,
	})
	if err != nil {
		writeError(c, err, "failed to review request")
		return
	}
	c.JSON(http.StatusOK, req)
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrRequestNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
	case errors.Is(err, benefit.ErrBenefitNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "benefit not found"})
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrEmployeesOnly), errors.Is(err, ErrNotEditable):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrConcurrentUpdate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrDuplicateRequest):
		c.JSON(http.StatusConflict, gin.H{"error": "benefit already applied for"})
	case errors.Is(err, benefit.ErrBenefitInactive), errors.Is(err, ErrInvalidReview):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.FromContext(c.Request.Context()).Error(fallback, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
