package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/39george/multisig-ecdsa/api/handlers"
	"github.com/39george/multisig-ecdsa/internal/ceremony"
	"github.com/39george/multisig-ecdsa/internal/keys"
)

// SetupRouter builds the HTTP surface around the ceremony orchestrator and
// the local keyring.
func SetupRouter(svc *ceremony.Service, ring *keys.Keyring) *gin.Engine {
	router := gin.Default()

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	sessions := router.Group("/sessions")
	{
		sessions.POST("", handlers.CreateSession(svc))
		sessions.GET("", handlers.ListSessions(svc))
		sessions.GET("/:id", handlers.GetSession(svc))
		sessions.POST("/:id/shares", handlers.SubmitShare(svc))
		sessions.POST("/:id/cancel", handlers.CancelSession(svc))
	}

	identities := router.Group("/identities")
	{
		identities.POST("", handlers.CreateIdentity(ring))
		identities.GET("", handlers.ListIdentities(ring))
		identities.POST("/:addr/sign", handlers.SignDigest(ring))
		identities.DELETE("/:addr", handlers.RevokeIdentity(ring))
	}

	return router
}
