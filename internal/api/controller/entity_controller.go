package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_lmsync/internal/localstore"
	"github.com/bassista/go_lmsync/internal/logger"
	"github.com/bassista/go_lmsync/internal/scope"
)

// EntityController exposes read-only views of the local store.
type EntityController struct {
	store localstore.Reader
}

func NewEntityController(store localstore.Reader) *EntityController {
	return &EntityController{store: store}
}

type typeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Types handles GET /entities - returns every stored type with its record count.
func (ec *EntityController) Types(c *gin.Context) {
	types := ec.store.Types()
	out := make([]typeCount, 0, len(types))
	for _, t := range types {
		out = append(out, typeCount{Type: t, Count: ec.store.Count(t)})
	}
	c.JSON(http.StatusOK, out)
}

// List handles GET /entities/:type - returns the records of a type ordered by id.
func (ec *EntityController) List(c *gin.Context) {
	entityType := c.Param("type")
	logger.WithComponent("entity-controller").Debugf("GET /entities/%s handler called", entityType)
	c.JSON(http.StatusOK, ec.store.Query(scope.All(entityType, scope.Naturally("id"))))
}

// Get handles GET /entities/:type/:id.
func (ec *EntityController) Get(c *gin.Context) {
	entityType, id := c.Param("type"), c.Param("id")
	rec, ok := ec.store.Get(entityType, id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}
