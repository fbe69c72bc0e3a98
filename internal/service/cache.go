// Пакет service — бизнес-логика filevault.
// CacheService — LRU-кэш метаданных файлов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш метаданных.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша метаданных.",
	})
)

// CacheService — кэш записей по значению, которым их искали (id или путь).
// Содержимое файлов не кэшируется: каждое скачивание читает диск.
type CacheService struct {
	cache *expirable.LRU[string, *model.FileRecord]
}

// NewCacheService создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	cache := expirable.NewLRU[string, *model.FileRecord](maxSize, nil, ttl)
	return &CacheService{cache: cache}
}

// Get возвращает запись по ключу поиска.
func (c *CacheService) Get(key string) (*model.FileRecord, bool) {
	val, ok := c.cache.Get(key)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет запись под ключом поиска.
func (c *CacheService) Set(key string, record *model.FileRecord) {
	c.cache.Add(key, record)
}

// Delete удаляет ключ из кэша.
func (c *CacheService) Delete(key string) {
	c.cache.Remove(key)
}

// Invalidate удаляет запись под обоими ключами: id и путём.
func (c *CacheService) Invalidate(record *model.FileRecord) {
	if record == nil {
		return
	}
	c.cache.Remove(record.ID)
	c.cache.Remove(record.Path)
}

// Len возвращает количество записей.
func (c *CacheService) Len() int {
	return c.cache.Len()
}
