package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/askbase/askbase/internal/middleware"
)

type RouterDeps struct {
	Auth        *AuthHandler
	Projects    *ProjectHandler
	Documents   *DocumentHandler
	Subscribers *SubscriberHandler
	Settings    *SettingsHandler
	Fleet       *FleetHandler
	JWTSecret   []byte
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/auth/login", middleware.RateLimit(time.Second), deps.Auth.Login)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))

	authGroup.POST("/projects", deps.Projects.Create)
	authGroup.GET("/projects", deps.Projects.List)
	authGroup.GET("/projects/:id", deps.Projects.Get)
	authGroup.PATCH("/projects/:id", deps.Projects.Update)
	authGroup.DELETE("/projects/:id", deps.Projects.Delete)
	authGroup.POST("/projects/:id/diagnose", deps.Projects.Diagnose)

	authGroup.POST("/projects/:id/documents", deps.Documents.Upload)
	authGroup.GET("/projects/:id/documents", deps.Documents.List)
	authGroup.POST("/projects/:id/documents/:doc_id/reingest", deps.Documents.Reingest)
	authGroup.DELETE("/projects/:id/documents/:doc_id", deps.Documents.Delete)

	authGroup.GET("/projects/:id/subscribers", deps.Subscribers.List)
	authGroup.POST("/projects/:id/subscribers/:sid/block", deps.Subscribers.Block)
	authGroup.POST("/projects/:id/subscribers/:sid/unblock", deps.Subscribers.Unblock)

	authGroup.GET("/settings/models", deps.Settings.Get)
	authGroup.PUT("/settings/models", deps.Settings.Save)

	authGroup.GET("/fleet/health", deps.Fleet.Health)
}
