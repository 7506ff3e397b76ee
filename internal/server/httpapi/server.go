// Package httpapi exposes the JSON HTTP API on a gin engine: routing, the
// RBAC gate, CORS, request logging and error translation.
package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Server holds the configured router.
type Server struct {
	engine  *gin.Engine
	handler http.Handler
}

// NewServer builds the router. CORS is enabled only when allowedOrigins is
// not empty.
func NewServer(users UserService, admin AdminService, tokens TokenVerifier, logger logging.Logger, allowedOrigins []string) *Server {
	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.HandleMethodNotAllowed = true

	engine.Use(recovery(logger), requestLogger(logger))
	if len(allowedOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins:     allowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", common.AuthorizationHeaderName},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": msgNotFound})
	})
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed."})
	})

	h := &handlers{users: users, admin: admin, logger: logger}
	gate := NewGate(tokens)

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	api := engine.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/signup", gate.Anonymous(), h.signup)
	authGroup.POST("/login", gate.Anonymous(), h.login)
	authGroup.POST("/refresh", gate.Anonymous(), h.refresh)
	authGroup.POST("/logout", gate.Anonymous(), h.logout)
	authGroup.GET("/me", gate.Authenticated(), h.me)

	usersGroup := api.Group("/users", gate.Authenticated())
	usersGroup.PATCH("/me", h.updateProfile)
	usersGroup.PATCH("/change-password", h.changePassword)

	adminGroup := api.Group("/admin", gate.Role(common.RoleAdmin))
	adminGroup.GET("/users", h.listUsers)
	adminGroup.PATCH("/users/:id/activate", gate.NotSelf("id"), h.setActive(true))
	adminGroup.PATCH("/users/:id/deactivate", gate.NotSelf("id"), h.setActive(false))

	return &Server{engine: engine, handler: stripTrailingSlash(engine)}
}

// Handler returns the root handler, tolerant of trailing slashes.
func (s *Server) Handler() http.Handler {
	return s.handler
}
