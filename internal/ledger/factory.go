package ledger

import (
	"context"
	"fmt"

	"github.com/bassista/go_lmsync/internal/config"
	"github.com/bassista/go_lmsync/internal/logger"
)

// NewFromConfig creates the ledger backend named by cfg.Backend.
// An empty backend selects the in-memory ledger.
func NewFromConfig(ctx context.Context, cfg config.LedgerConfig, opts ...Option) (Ledger, error) {
	log := logger.WithComponent("ledger")
	switch cfg.Backend {
	case config.LedgerMemory, "":
		log.Debug("using in-memory sync ledger")
		return NewMemory(opts...), nil
	case config.LedgerSQLite:
		log.Debugf("using sqlite sync ledger at %s", cfg.SQLitePath)
		l, err := OpenSQLite(ctx, cfg.SQLitePath, opts...)
		if err != nil {
			return nil, err
		}
		return l, nil
	case config.LedgerRedis:
		log.Debugf("using redis sync ledger at %s", cfg.RedisAddr)
		l, err := NewRedis(ctx, RedisOptions{Addr: cfg.RedisAddr, KeyPrefix: cfg.RedisPrefix}, opts...)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend: %s (supported: %s, %s, %s)",
			cfg.Backend, config.LedgerMemory, config.LedgerSQLite, config.LedgerRedis)
	}
}
