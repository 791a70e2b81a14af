package route

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_lmsync/internal/app"
)

func SetupRoutes(r *gin.Engine, appCtx *app.App) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "UP",
		})
	})

	publicRouter := r.Group("")
	syncRouter := r.Group("")

	// All Public APIs
	timeout := appCtx.Config.Server.RequestTimeout

	NewConfigurationRouter(timeout, publicRouter, appCtx.Config)
	NewEntityRouter(timeout, publicRouter, appCtx.Store)
	NewLedgerRouter(timeout, publicRouter, appCtx.Ledger, appCtx.Logout)
	NewSyncRouter(appCtx.Config.Server.SyncTimeout, syncRouter, appCtx)
}
