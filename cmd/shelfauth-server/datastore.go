package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/shelfauth"
	"github.com/MrEthical07/shelfauth/internal/logging"
	"github.com/MrEthical07/shelfauth/storage/postgres"
	"github.com/MrEthical07/shelfauth/storage/sqlite"
)

// datastore is what the server needs beyond shelfauth.Store.
type datastore interface {
	shelfauth.Store
	Ping(ctx context.Context) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// openDatastore picks the backend from the URL scheme: postgres:// and
// postgresql:// use pgx, anything else is a sqlite path.
func openDatastore(ctx context.Context, url string) (datastore, func(), error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		store, err := postgres.Open(ctx, url)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return store, store.Close, nil
	}

	store, err := sqlite.Open(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

// purgeLoop removes expired sessions and verification requests every interval
// until ctx is done. A zero interval disables it.
func purgeLoop(ctx context.Context, store datastore, interval time.Duration, log logging.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.PurgeExpired(ctx, now)
			if err != nil {
				log.Warn(ctx, "purge expired records failed", "error", err)
				continue
			}
			if n > 0 {
				log.Info(ctx, "purged expired records", "count", n)
			}
		}
	}
}
