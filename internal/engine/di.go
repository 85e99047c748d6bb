package engine

import (
	"github.com/ashureev/yar/internal/config"
	"github.com/ashureev/yar/internal/store"
	"github.com/samber/do/v2"
)

// RegisterDI provides the Engine over the injected Repository.
func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Engine, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo, err := do.Invoke[store.Repository](i)
		if err != nil {
			return nil, err
		}
		return New(repo, cfg.Engine), nil
	})
}
