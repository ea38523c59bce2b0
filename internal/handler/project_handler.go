package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/askbase/askbase/internal/pkg/errcode"
	"github.com/askbase/askbase/internal/pkg/response"
	"github.com/askbase/askbase/internal/service"
)

type ProjectHandler struct {
	projects *service.ProjectService
	diagnose *service.DiagnoseService
}

func NewProjectHandler(projects *service.ProjectService, diagnose *service.DiagnoseService) *ProjectHandler {
	return &ProjectHandler{projects: projects, diagnose: diagnose}
}

type createProjectRequest struct {
	Name              string `json:"name"`
	Password          string `json:"password"`
	PromptTemplate    string `json:"prompt_template"`
	MaxResponseLength int    `json:"max_response_length"`
	ModelID           string `json:"model_id"`
	BotToken          string `json:"bot_token"`
	Active            bool   `json:"active"`
}

func (h *ProjectHandler) Create(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	project, err := h.projects.Create(c.Request.Context(), service.CreateProjectArgs{
		Name:              req.Name,
		Password:          req.Password,
		PromptTemplate:    req.PromptTemplate,
		MaxResponseLength: req.MaxResponseLength,
		ModelID:           req.ModelID,
		BotToken:          req.BotToken,
		Active:            req.Active,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, project)
}

func (h *ProjectHandler) List(c *gin.Context) {
	projects, err := h.projects.List(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, projects)
}

func (h *ProjectHandler) Get(c *gin.Context) {
	project, err := h.projects.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, project)
}

type updateProjectRequest struct {
	Name              *string `json:"name"`
	Password          *string `json:"password"`
	PromptTemplate    *string `json:"prompt_template"`
	MaxResponseLength *int    `json:"max_response_length"`
	ModelID           *string `json:"model_id"`
	BotToken          *string `json:"bot_token"`
	Active            *bool   `json:"active"`
}

func (h *ProjectHandler) Update(c *gin.Context) {
	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	project, err := h.projects.Update(c.Request.Context(), c.Param("id"), service.UpdateProjectArgs{
		Name:              req.Name,
		Password:          req.Password,
		PromptTemplate:    req.PromptTemplate,
		MaxResponseLength: req.MaxResponseLength,
		ModelID:           req.ModelID,
		BotToken:          req.BotToken,
		Active:            req.Active,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, project)
}

func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.projects.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

type diagnoseRequest struct {
	Question string `json:"question"`
}

func (h *ProjectHandler) Diagnose(c *gin.Context) {
	var req diagnoseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		response.Error(c, errcode.ErrInvalid, "question required")
		return
	}
	trace, err := h.diagnose.Diagnose(c.Request.Context(), c.Param("id"), req.Question)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, trace)
}
