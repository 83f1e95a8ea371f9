package audit

import (
	"context"
	"net/http"
	"strconv"

	"github.com/abduss/benefits/internal/auth"
	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type lister interface {
	List(ctx context.Context, action Action, limit int) ([]Event, error)
}

// RegisterRoutes mounts the administrator audit trail endpoint.
func RegisterRoutes(group *gin.RouterGroup, events lister) {
	group.GET("/audit", auth.RequireAdmin(), func(c *gin.Context) {
		limit := defaultListLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			limit = min(n, maxListLimit)
		}

		list, err := events.List(c.Request.Context(), Action(c.Query("action")), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit events"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": list})
	})
}
