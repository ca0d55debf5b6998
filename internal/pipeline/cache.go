package pipeline

import (
	"github.com/ppiankov/birthplace/internal/cache"
	"github.com/ppiankov/birthplace/internal/model"
)

func newPageCache(cfg model.CacheConfig) cache.Cache {
	if cfg.Dir == "" {
		return cache.NewMemoryCache(cfg.MemoryTTL, cfg.MemoryTTL)
	}
	return cache.NewLayeredCache(cfg.MemoryTTL, cfg.Dir, cfg.DiskTTL)
}
