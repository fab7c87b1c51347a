// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"parktayo/internal/approach"
	"parktayo/internal/auth"
	"parktayo/internal/bookings"
	"parktayo/internal/noshow"
	"parktayo/internal/sessions"
	"parktayo/internal/shared/config"
	"parktayo/internal/shared/database"
	"parktayo/internal/spaces"
	"parktayo/internal/users"
	"parktayo/internal/wallet"
)

// Dependencies carries the services built and wired in main. The router
// only builds controllers and registers routes; lifecycles (scheduler,
// tracker, sweeper, relayer) stay with main.
type Dependencies struct {
	Auth     auth.Service
	Users    users.Repository
	Spaces   spaces.Service
	Wallet   wallet.Service
	Bookings bookings.Service
	Sessions sessions.Service
	Tracker  *approach.Tracker
	NoShow   *noshow.Scheduler
}

// Router holds all route dependencies
type Router struct {
	config *config.Config
	db     *database.DB
	deps   Dependencies
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB, deps Dependencies) *Router {
	return &Router{
		config: cfg,
		db:     db,
		deps:   deps,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		auth.NewRouter(auth.NewController(r.deps.Auth)).SetupRoutes(api)
		users.SetupUserRoutes(api, users.NewController(r.deps.Users))
		spaces.SetupSpaceRoutes(api, spaces.NewController(r.deps.Spaces))
		wallet.SetupWalletRoutes(api, wallet.NewController(r.deps.Wallet))
		bookings.SetupBookingRoutes(api, bookings.NewController(r.deps.Bookings))
		approach.SetupApproachRoutes(api, approach.NewController(r.deps.Tracker))
		sessions.SetupSessionRoutes(api, sessions.NewController(r.deps.Sessions))
		noshow.SetupNoShowRoutes(api, r.config, noshow.NewController(r.deps.NoShow))
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "parktayo-booking-core",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "parktayo-booking-core",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "operational",
			"api_version": r.config.APIVersion,
			"timestamp":   time.Now(),
		})
	})
}
