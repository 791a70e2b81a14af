package route

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_lmsync/internal/api/controller"
	"github.com/bassista/go_lmsync/internal/api/middleware"
	"github.com/bassista/go_lmsync/internal/localstore"
)

func NewEntityRouter(timeout time.Duration, group *gin.RouterGroup, store localstore.Reader) {
	ec := controller.NewEntityController(store)
	timeoutMiddleware := middleware.RequestTimeout(timeout)

	group.GET("entities", timeoutMiddleware, ec.Types)
	group.GET("entities/:type", timeoutMiddleware, ec.List)
	group.GET("entities/:type/:id", timeoutMiddleware, ec.Get)
}
