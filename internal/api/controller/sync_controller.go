package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_lmsync/internal/api/middleware"
	"github.com/bassista/go_lmsync/internal/entity"
	"github.com/bassista/go_lmsync/internal/fetch"
	"github.com/bassista/go_lmsync/internal/lms"
	"github.com/bassista/go_lmsync/internal/logger"
	"github.com/bassista/go_lmsync/internal/store"
	"github.com/bassista/go_lmsync/internal/syncerr"
	"github.com/bassista/go_lmsync/internal/usecase"
)

// SyncService runs catalog use cases. *app.App implements it.
type SyncService interface {
	Build(name string, params lms.Params) (usecase.Runnable, error)
	Sync(ctx context.Context, uc usecase.Runnable, force, all bool) fetch.Result
	View(ctx context.Context, uc usecase.Runnable) (store.Snapshot[entity.Record], error)
}

// NetworkSwitch is the connectivity signal the engine consults before fetching.
type NetworkSwitch interface {
	IsReachable() bool
	Set(reachable bool)
}

// SyncResponse is the JSON form of a fetch.Result.
type SyncResponse struct {
	ID        string       `json:"id"`
	UseCase   string       `json:"use_case"`
	Fetched   bool         `json:"fetched"`
	FromCache bool         `json:"from_cache"`
	Pages     int          `json:"pages"`
	Complete  bool         `json:"complete"`
	Next      string       `json:"next,omitempty"`
	Error     string       `json:"error,omitempty"`
	Kind      syncerr.Kind `json:"kind,omitempty"`
}

// NewSyncResponse converts a fetch.Result for JSON output.
func NewSyncResponse(res fetch.Result) SyncResponse {
	out := SyncResponse{
		ID:        res.ID.String(),
		UseCase:   res.UseCase,
		Fetched:   res.Fetched,
		FromCache: res.FromCache,
		Pages:     res.Pages,
		Complete:  res.Complete,
		Next:      res.Next,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
		out.Kind = res.Kind()
	}
	return out
}

// SectionResponse is one group of a sectioned view.
type SectionResponse struct {
	Key   string          `json:"key"`
	Items []entity.Record `json:"items"`
}

// ViewResponse is the JSON form of a store snapshot.
type ViewResponse struct {
	State     store.State       `json:"state"`
	Error     string            `json:"error,omitempty"`
	Kind      syncerr.Kind      `json:"kind,omitempty"`
	FullError bool              `json:"full_error"`
	Complete  bool              `json:"complete"`
	Items     []entity.Record   `json:"items"`
	Sections  []SectionResponse `json:"sections,omitempty"`
}

// NewViewResponse converts a snapshot for JSON output. Sections are included
// when sectioned is set.
func NewViewResponse(snap store.Snapshot[entity.Record], sectioned bool) ViewResponse {
	out := ViewResponse{
		State:     snap.State,
		Kind:      snap.ErrorKind(),
		FullError: snap.ShowsFullError(),
		Complete:  snap.Complete,
		Items:     snap.Items,
	}
	if out.Items == nil {
		out.Items = []entity.Record{}
	}
	if snap.Err != nil {
		out.Error = snap.Err.Error()
	}
	if sectioned {
		for _, sec := range snap.Sections() {
			out.Sections = append(out.Sections, SectionResponse{Key: sec.Key, Items: sec.Items})
		}
	}
	return out
}

type networkRequest struct {
	Reachable *bool `json:"reachable" binding:"required"`
}

// SyncController exposes the use case catalog over HTTP.
type SyncController struct {
	service SyncService
	catalog *lms.Catalog
	network NetworkSwitch
}

// NewSyncController creates a SyncController.
func NewSyncController(service SyncService, catalog *lms.Catalog, network NetworkSwitch) *SyncController {
	return &SyncController{service: service, catalog: catalog, network: network}
}

// UseCases handles GET /usecases - lists the catalog.
func (sc *SyncController) UseCases(c *gin.Context) {
	c.JSON(http.StatusOK, sc.catalog.Entries())
}

// params collects every query parameter except the reserved flags.
func params(c *gin.Context) lms.Params {
	out := lms.Params{}
	for k, v := range c.Request.URL.Query() {
		if k == "force" || k == "all" || len(v) == 0 {
			continue
		}
		out[k] = v[0]
	}
	return out
}

func boolQuery(c *gin.Context, name string) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

// build resolves the named use case, writing the error response on failure.
func (sc *SyncController) build(c *gin.Context, name string) (usecase.Runnable, bool) {
	uc, err := sc.service.Build(name, params(c))
	if err == nil {
		return uc, true
	}
	if errors.Is(err, lms.ErrUnknownUseCase) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	return nil, false
}

// Sync handles POST /sync/:usecase - runs one refresh, or every page with all=true.
// A failed sync is still a 200: the outcome is in the body.
func (sc *SyncController) Sync(c *gin.Context) {
	name := c.Param("usecase")
	log := logger.WithComponent("sync-controller")
	log.Debugf("POST /sync/%s handler called", name)

	force, err := boolQuery(c, "force")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid force value"})
		return
	}
	all, err := boolQuery(c, "all")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid all value"})
		return
	}
	uc, ok := sc.build(c, name)
	if !ok {
		return
	}

	res := sc.service.Sync(c.Request.Context(), uc, force, all)
	if res.Err != nil {
		log.Warnf("sync %s failed (%s): %v", name, res.Kind(), res.Err)
		middleware.ReportSyncError(c, name, res.Err)
	}
	c.JSON(http.StatusOK, NewSyncResponse(res))
}

// View handles GET /views/:usecase - opens the use case the way a screen does
// and returns the first settled snapshot.
func (sc *SyncController) View(c *gin.Context) {
	name := c.Param("usecase")
	logger.WithComponent("sync-controller").Debugf("GET /views/%s handler called", name)

	if entry, ok := sc.catalog.Lookup(name); ok && entry.Mutates {
		c.JSON(http.StatusBadRequest, gin.H{"error": "use case " + name + " changes server state and cannot be viewed"})
		return
	}
	uc, ok := sc.build(c, name)
	if !ok {
		return
	}

	snap, err := sc.service.View(c.Request.Context(), uc)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "view did not settle in time"})
			return
		}
		logger.WithComponent("sync-controller").Errorf("view %s: %v", name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, NewViewResponse(snap, uc.Scope().SectionKey != ""))
}

// Network handles GET /network.
func (sc *SyncController) Network(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reachable": sc.network.IsReachable()})
}

// SetNetwork handles PUT /network - simulates losing or regaining connectivity.
func (sc *SyncController) SetNetwork(c *gin.Context) {
	var req networkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	sc.network.Set(*req.Reachable)
	logger.WithComponent("sync-controller").Infof("network reachable=%t", *req.Reachable)
	c.JSON(http.StatusOK, gin.H{"reachable": sc.network.IsReachable()})
}
