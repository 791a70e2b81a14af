package route

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_lmsync/internal/api/controller"
	"github.com/bassista/go_lmsync/internal/api/middleware"
	"github.com/bassista/go_lmsync/internal/app"
)

// NewSyncRouter sets up the use case routes. They run network fetches, so
// they get their own, longer timeout.
func NewSyncRouter(timeout time.Duration, group *gin.RouterGroup, appCtx *app.App) {
	group.Use(middleware.RequestTimeout(timeout))

	sc := controller.NewSyncController(appCtx, appCtx.Catalog, appCtx.Network)

	group.GET("usecases", sc.UseCases)
	group.POST("sync/:usecase", sc.Sync)
	group.GET("views/:usecase", sc.View)
	group.GET("network", sc.Network)
	group.PUT("network", sc.SetNetwork)
}
