package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/CageChen/fxv/internal/config"
	"github.com/CageChen/fxv/internal/logging"
	"github.com/CageChen/fxv/internal/metrics"
	"github.com/CageChen/fxv/internal/workspace"
)

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Config   *config.Config
	Registry *workspace.Registry
	Watch    Watch // may be nil
	WS       *WSHandler
	Logger   *zap.Logger
}

// NewRouter builds the gin engine serving the API under /api/v1.
func NewRouter(deps Deps) *gin.Engine {
	if deps.WS == nil {
		deps.WS = NewWSHandler()
	}
	deps.WS.SetLogger(deps.Logger)
	workspaceHandler := NewWorkspaceHandler(deps.Config, deps.Registry, deps.Watch, deps.Logger)
	fileHandler := NewFileHandler(deps.Registry)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.Middleware(deps.Logger))
	r.Use(metrics.Middleware())
	r.Use(corsMiddleware())

	api := r.Group("/api/v1")
	{
		api.GET("/workspaces", workspaceHandler.ListWorkspaces)
		api.POST("/workspaces", workspaceHandler.AddWorkspace)
		api.DELETE("/workspaces/:name", workspaceHandler.RemoveWorkspace)
		api.GET("/workspaces/:name/directory", workspaceHandler.GetDirectory)
		api.POST("/workspaces/:name/refresh", workspaceHandler.Refresh)
		api.PUT("/workspaces/:name/conflicts", workspaceHandler.SetConflict)

		api.GET("/workspaces/:name/raw/*path", fileHandler.GetRaw)
		api.GET("/workspaces/:name/preview/*path", fileHandler.GetPreview)
		api.GET("/preview.css", fileHandler.GetStylesheet)

		api.GET("/ws", deps.WS.HandleWS)
	}
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, If-None-Match")
		c.Header("Access-Control-Expose-Headers", "ETag")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
