package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_lmsync/internal/ledger"
	"github.com/bassista/go_lmsync/internal/logger"
)

// LedgerController inspects and clears sync bookkeeping.
type LedgerController struct {
	ledger ledger.Ledger
	logout func(ctx context.Context) error
}

// NewLedgerController creates a LedgerController. logout clears the ledger
// together with the local data it describes.
func NewLedgerController(led ledger.Ledger, logout func(ctx context.Context) error) *LedgerController {
	return &LedgerController{ledger: led, logout: logout}
}

// Get handles GET /ledger/:key.
func (lc *LedgerController) Get(c *gin.Context) {
	key := c.Param("key")
	rec, ok, err := lc.ledger.Get(c.Request.Context(), key)
	if err != nil {
		logger.WithKey("ledger-controller", key).Errorf("ledger lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger unavailable"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "never synced"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Invalidate handles DELETE /ledger/:key - the next non-forced refresh of the key fetches.
func (lc *LedgerController) Invalidate(c *gin.Context) {
	key := c.Param("key")
	if err := lc.ledger.Invalidate(c.Request.Context(), key); err != nil {
		logger.WithKey("ledger-controller", key).Errorf("invalidate failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger unavailable"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Reset handles DELETE /ledger - logs out, clearing the ledger and the local store.
func (lc *LedgerController) Reset(c *gin.Context) {
	if err := lc.logout(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
