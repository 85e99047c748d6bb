package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/yar/internal/config"
	"github.com/samber/do/v2"
)

const databaseInitTimeout = 15 * time.Second

// RegisterDI provides the SQLite-backed Repository. Opening it applies migrations.
func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (Repository, error) {
		cfg := do.MustInvoke[*config.Config](i)
		ctx, cancel := context.WithTimeout(context.Background(), databaseInitTimeout)
		defer cancel()

		s, err := NewSQLite(ctx, cfg.DBPath, Options{BusyTimeout: cfg.DBBusyTimeout})
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return s, nil
	})
}
