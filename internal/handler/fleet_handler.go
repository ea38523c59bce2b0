package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/askbase/askbase/internal/fleet"
	"github.com/askbase/askbase/internal/pkg/response"
)

type FleetHandler struct {
	manager *fleet.Manager
}

func NewFleetHandler(manager *fleet.Manager) *FleetHandler {
	return &FleetHandler{manager: manager}
}

func (h *FleetHandler) Health(c *gin.Context) {
	health, err := h.manager.Health(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"running": h.manager.RunningCount(),
		"bots":    health,
	})
}
