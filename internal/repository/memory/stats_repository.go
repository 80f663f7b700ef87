package memory

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// StatsRepository keeps per-model audit counters fed by the consumer
// service. Counters expire after an hour of inactivity, so they reflect
// recent write traffic rather than all-time totals.
type StatsRepository struct {
	cache *cache.Cache
}

func NewStatsRepository() *StatsRepository {
	c := cache.New(1*time.Hour, 10*time.Minute)
	return &StatsRepository{
		cache: c,
	}
}

func (r *StatsRepository) IncrementStored(model string) {
	key := "stored:" + model
	if _, err := r.cache.IncrementInt64(key, 1); err != nil {
		r.cache.Set(key, int64(1), cache.DefaultExpiration)
	}
}

func (r *StatsRepository) StoredCount(model string) int64 {
	if x, found := r.cache.Get("stored:" + model); found {
		return x.(int64)
	}
	return 0
}
