package route

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_lmsync/internal/api/controller"
	"github.com/bassista/go_lmsync/internal/api/middleware"
	"github.com/bassista/go_lmsync/internal/ledger"
)

func NewLedgerRouter(timeout time.Duration, group *gin.RouterGroup, led ledger.Ledger, logout func(ctx context.Context) error) {
	lc := controller.NewLedgerController(led, logout)
	timeoutMiddleware := middleware.RequestTimeout(timeout)

	group.GET("ledger/:key", timeoutMiddleware, lc.Get)
	group.DELETE("ledger/:key", timeoutMiddleware, lc.Invalidate)
	group.DELETE("ledger", timeoutMiddleware, lc.Reset)
}
