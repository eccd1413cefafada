package rate

import (
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

func NewLimiter(rdb *redis.Client) *redis_rate.Limiter {
	return redis_rate.NewLimiter(rdb)
}

func MaxRequestsInPeriod(count int, period time.Duration) redis_rate.Limit {
	return redis_rate.Limit{Rate: count, Burst: count, Period: period}
}
