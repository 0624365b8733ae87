package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/talkscope-team/talkscope/pkg/config"
)

// Router holds all handlers
type Router struct {
	cfg             *config.Config
	analysisHandler *AnalysisController
}

// NewRouter creates a new router with all handlers
func NewRouter(cfg *config.Config, analysisHandler *AnalysisController) *Router {
	return &Router{
		cfg:             cfg,
		analysisHandler: analysisHandler,
	}
}

// Setup configures all application routes
func (rt *Router) Setup(e *echo.Echo) {
	// Health check endpoint
	e.GET("/health", rt.healthCheck)

	// API v1 group
	v1 := e.Group("/v1")

	rt.setupAnalysisRoutes(v1)
}

// setupAnalysisRoutes configures conversation analysis routes
func (rt *Router) setupAnalysisRoutes(g *echo.Group) {
	analysisGroup := g.Group("/analyses")

	if rt.analysisHandler != nil {
		analysisGroup.POST("", rt.analysisHandler.CreateAnalysis)
		analysisGroup.GET("", rt.analysisHandler.ListAnalyses)
		analysisGroup.POST("/predictions", rt.analysisHandler.AnalyzePredictions)
		analysisGroup.GET("/:id", rt.analysisHandler.GetAnalysis)
		analysisGroup.GET("/:id/report", rt.analysisHandler.GetReport)
		analysisGroup.GET("/:id/table", rt.analysisHandler.GetTable)
	} else {
		// Placeholder routes when handler is not initialized
		analysisGroup.POST("", rt.notImplemented)
		analysisGroup.GET("", rt.notImplemented)
		analysisGroup.POST("/predictions", rt.notImplemented)
		analysisGroup.GET("/:id", rt.notImplemented)
		analysisGroup.GET("/:id/report", rt.notImplemented)
		analysisGroup.GET("/:id/table", rt.notImplemented)
	}
}

// notImplemented returns 501 Not Implemented response
func (rt *Router) notImplemented(c echo.Context) error {
	return c.JSON(http.StatusNotImplemented, map[string]interface{}{
		"error":  "This endpoint is not yet implemented",
		"path":   c.Request().URL.Path,
		"method": c.Request().Method,
	})
}

// healthCheck returns health status
func (rt *Router) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "talkscope",
	})
}
