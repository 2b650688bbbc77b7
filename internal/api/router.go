// Package api implements the user intake HTTP endpoint.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jtich40/event-driven-integration-demo/pkg/middleware"
)

// NewRouter creates and configures the Gin router.
func NewRouter(h *UserHandler, logger *zap.Logger) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.RequestLogger(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// User routes
	r.POST("/users", h.CreateUser)
	r.GET("/users/:id", h.GetUser)
	r.GET("/users", h.ListUsers)

	return r
}
