package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_lmsync/internal/config"
)

// ConfigurationResponse is the sync configuration shown to inspector clients.
// Credentials are never included.
type ConfigurationResponse struct {
	BaseUrl       string `json:"baseUrl"`
	DefaultTTLSec int    `json:"defaultTtlSec"`
	MaxPages      int    `json:"maxPages"`
	Concurrency   int    `json:"concurrency"`
	Fixtures      bool   `json:"fixtures"`
	LedgerBackend string `json:"ledgerBackend"`
}

// ConfigurationController handles configuration-related API endpoints.
type ConfigurationController struct {
	config *config.Config
}

// NewConfigurationController creates a new ConfigurationController.
func NewConfigurationController(cfg *config.Config) *ConfigurationController {
	return &ConfigurationController{
		config: cfg,
	}
}

// GetConfiguration returns the effective sync configuration.
func (cc *ConfigurationController) GetConfiguration(c *gin.Context) {
	response := ConfigurationResponse{
		BaseUrl:       cc.config.API.BaseURL,
		DefaultTTLSec: int(cc.config.Sync.DefaultTTL.Seconds()),
		MaxPages:      cc.config.Sync.MaxPages,
		Concurrency:   cc.config.Sync.Concurrency,
		Fixtures:      cc.config.Sync.FixturesPath != "",
		LedgerBackend: cc.config.Ledger.Backend,
	}
	c.JSON(http.StatusOK, response)
}
