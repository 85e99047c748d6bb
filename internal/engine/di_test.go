package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/yar/internal/config"
	"github.com/ashureev/yar/internal/store"
	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDI(t *testing.T) {
	cfg := &config.Config{
		DBPath:        filepath.Join(t.TempDir(), "yar.db"),
		DBBusyTimeout: time.Second,
		Engine:        config.DefaultEngine(),
	}

	injector := do.New()
	do.ProvideValue(injector, cfg)
	store.RegisterDI(injector)
	RegisterDI(injector)

	eng, err := do.Invoke[*Engine](injector)
	require.NoError(t, err)
	assert.Equal(t, cfg.Engine, eng.Config())
	assert.NoError(t, eng.Ping(context.Background()))

	again, err := do.Invoke[*Engine](injector)
	require.NoError(t, err)
	assert.Same(t, eng, again)

	repo := do.MustInvoke[store.Repository](injector)
	require.NoError(t, repo.Close())
}
