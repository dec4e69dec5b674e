// Package httpapi exposes the assistant over HTTP for web front-ends.
package httpapi

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"edumate/internal/assistant"
)

const (
	ownerHeader      = "X-Owner"
	ownerPrefix      = "api:"
	maxOwnerLength   = 120
	maxUploadMemory  = 8 << 20
	defaultListLimit = 20
	bearerPrefix     = "Bearer "
)

type Config struct {
	// AdminToken is compared with the bearer token of admin requests.
	// Admin routes answer 403 while it is empty.
	AdminToken string
}

type Server struct {
	engine    *gin.Engine
	assistant *assistant.Service
	cfg       Config
	log       *slog.Logger
}

func New(svc *assistant.Service, cfg Config, log *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.MaxMultipartMemory = maxUploadMemory

	s := &Server{
		engine:    engine,
		assistant: svc,
		cfg:       cfg,
		log:       log,
	}

	engine.Use(gin.Recovery(), s.requestLogger())

	engine.GET("/healthz", s.handleHealth)

	v1 := engine.Group("/api/v1")
	{
		v1.GET("/presets", s.handleListPresets)

		owned := v1.Group("", s.requireOwner())
		owned.POST("/summaries", s.handleCreateSummary)
		owned.GET("/summaries", s.handleListSummaries)
		owned.DELETE("/summaries/:id", s.handleDeleteSummary)
		owned.POST("/chat", s.handleChat)
		owned.GET("/chat", s.handleChatHistory)
		owned.DELETE("/chat", s.handleResetChat)

		admin := v1.Group("", s.requireAdmin())
		admin.PUT("/settings/llm", s.handlePutCredentials)
		admin.GET("/memories", s.handleListMemories)
		admin.POST("/memories", s.handleCreateMemory)
		admin.PUT("/memories/:id", s.handleUpdateMemory)
		admin.DELETE("/memories/:id", s.handleDeleteMemory)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		s.log.InfoContext(c.Request.Context(), "HTTP request is handled",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"durationSeconds", time.Since(start).Seconds())
	}
}

func (s *Server) requireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetHeader(ownerHeader)
		if owner == "" || len(owner) > maxOwnerLength {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
				Error: ownerHeader + " header is required",
				Kind:  "invalid",
			})

			return
		}

		c.Set(ownerKey, ownerPrefix+owner)
		c.Next()
	}
}

// requireAdmin lets through requests carrying the configured admin token.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminToken == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{
				Error: "admin API is disabled",
				Kind:  "forbidden",
			})

			return
		}

		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), bearerPrefix)
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			s.log.WarnContext(c.Request.Context(), "Admin request is rejected",
				"path", c.FullPath(),
				"clientIP", c.ClientIP())

			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
				Error: "admin token is missing or wrong",
				Kind:  "unauthorized",
			})

			return
		}

		c.Next()
	}
}

const ownerKey = "owner"

func owner(c *gin.Context) string {
	return c.GetString(ownerKey)
}
