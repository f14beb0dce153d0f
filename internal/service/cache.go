// cache.go — LRU-кэш resolved записей поиска с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fps_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш записей поиска.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fps_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша записей поиска.",
	})
)

// CacheService — LRU-кэш записей поиска с автоматическим TTL.
// Кэшируются только resolved записи: они иммутабельны, pending запись
// в любой момент может получить результат.
type CacheService struct {
	cache *expirable.LRU[string, *model.FpSearch]
}

// NewCacheService создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	cache := expirable.NewLRU[string, *model.FpSearch](maxSize, nil, ttl)
	return &CacheService{cache: cache}
}

// Get возвращает запись поиска из кэша по ID.
// Обновляет Prometheus-метрики hit/miss.
func (c *CacheService) Get(id string) (*model.FpSearch, bool) {
	val, ok := c.cache.Get(id)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет запись в кэш. Pending записи игнорируются.
func (c *CacheService) Set(f *model.FpSearch) {
	if !f.IsResolved() {
		return
	}
	c.cache.Add(f.ID, f)
}
