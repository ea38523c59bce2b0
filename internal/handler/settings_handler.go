package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/askbase/askbase/internal/pkg/errcode"
	"github.com/askbase/askbase/internal/pkg/response"
	"github.com/askbase/askbase/internal/service"
)

type SettingsHandler struct {
	settings *service.SettingsService
}

func NewSettingsHandler(settings *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, settings)
}

type saveSettingsRequest struct {
	PrimaryModel  string `json:"primary_model"`
	FallbackModel string `json:"fallback_model"`
}

func (h *SettingsHandler) Save(c *gin.Context) {
	var req saveSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	settings, err := h.settings.Save(c.Request.Context(), req.PrimaryModel, req.FallbackModel)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, settings)
}
