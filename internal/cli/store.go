package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/dealerdesk/pkg/tokenstore"
	"github.com/aussiebroadwan/dealerdesk/pkg/tokenstore/drivers/redis"
	"github.com/aussiebroadwan/dealerdesk/pkg/tokenstore/drivers/sqlite"
)

// OpenStore builds the configured session store. The returned func releases
// any connection it holds.
func OpenStore(ctx context.Context, cfg Config) (tokenstore.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StoreKind {
	case StoreMemory:
		return tokenstore.NewMemory(), noop, nil

	case StoreFile, "":
		return tokenstore.NewFile(cfg.storePath()), noop, nil

	case StoreSQLite:
		path := cfg.storePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("create store dir: %w", err)
		}
		st, err := sqlite.Open(path, cfg.StoreKey)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil

	case StoreRedis:
		st, err := redis.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.StoreKey)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q (want file, sqlite, redis or memory)", cfg.StoreKind)
	}
}
