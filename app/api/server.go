package api

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates the HTTP server with all routes configured.
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	// Webhook endpoints, authenticated by the provider secret
	webhooks := r.Group("/webhooks")
	webhooks.Use(webhookAuthMiddleware(handler.pushSecret))
	{
		webhooks.POST("/push", handler.HandlePush)
		webhooks.POST("/subscription-changed", handler.HandleSubscriptionChanged)
	}

	// Health and status endpoints
	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)

	// API endpoints (conditionally enabled with authentication)
	if apiAccessKey != "" {
		api := r.Group("/api")
		api.Use(authMiddleware(apiAccessKey))
		{
			api.POST("/accounts", handler.CreateAccount)
			api.DELETE("/accounts/:id", handler.WipeoutAccount)
			api.POST("/accounts/:id/subscriptions", handler.Subscribe)
			api.POST("/accounts/:id/subscriptions/interval", handler.CreateIntervalSubscription)
			api.POST("/accounts/:id/unsubscribe", handler.Unsubscribe)
			api.POST("/unsubscribe", handler.UnsubscribeAll)
			api.POST("/items", handler.SaveItem)
			api.POST("/items/:id/refetch", handler.RefetchItem)
			api.POST("/import/pocket", handler.ImportPocket)
		}
		log.Printf("API endpoints enabled with authentication")
	} else {
		log.Printf("API endpoints disabled (API_ACCESS_KEY not set)")
	}

	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"push_webhook":         "/webhooks/push",
			"subscription_webhook": "/webhooks/subscription-changed",
			"health":               "/health",
			"stats":                "/stats",
		}

		if apiAccessKey != "" {
			endpoints["accounts"] = "/api/accounts (POST, requires X-API-Key header)"
			endpoints["subscriptions"] = "/api/accounts/<id>/subscriptions (POST, requires X-API-Key header)"
			endpoints["items"] = "/api/items (POST, requires X-API-Key header)"
			endpoints["pocket_import"] = "/api/import/pocket (POST, requires X-API-Key header)"
		}

		c.JSON(200, gin.H{
			"service":     "Feedloft",
			"version":     "1.0.0",
			"description": "Personal feed aggregator: subscription lifecycle and feed item import pipeline",
			"endpoints":   endpoints,
			"api_status": map[string]interface{}{
				"enabled":       apiAccessKey != "",
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}

// authMiddleware creates authentication middleware for API endpoints
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// webhookAuthMiddleware checks the shared secret the push provider
// appends to callback urls.
func webhookAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret != "" && c.Query("secret") != secret {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook secret"})
			c.Abort()
			return
		}
		c.Next()
	}
}
