package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/askbase/askbase/internal/pkg/response"
	"github.com/askbase/askbase/internal/service"
)

type SubscriberHandler struct {
	subscribers *service.SubscriberService
}

func NewSubscriberHandler(subscribers *service.SubscriberService) *SubscriberHandler {
	return &SubscriberHandler{subscribers: subscribers}
}

func (h *SubscriberHandler) List(c *gin.Context) {
	subs, err := h.subscribers.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, subs)
}

func (h *SubscriberHandler) Block(c *gin.Context) {
	if err := h.subscribers.Block(c.Request.Context(), c.Param("id"), c.Param("sid")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *SubscriberHandler) Unblock(c *gin.Context) {
	if err := h.subscribers.Unblock(c.Request.Context(), c.Param("id"), c.Param("sid")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
