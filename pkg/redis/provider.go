package redis

import (
	"github.com/mylxsw/glacier/infra"
	"github.com/redis/go-redis/v9"

	"github.com/mylxsw/krea-server/config"
	"github.com/mylxsw/krea-server/pkg/rate"
)

type Provider struct{}

func (Provider) Register(binder infra.Binder) {
	binder.MustSingleton(func(conf *config.Config) *redis.Client {
		return redis.NewClient(&redis.Options{
			Addr:     conf.RedisAddr(),
			Password: conf.RedisPassword,
		})
	})

	binder.MustSingleton(rate.NewLimiter)
}

// ShouldLoad 只有启用限流时才需要 Redis
func (Provider) ShouldLoad(conf *config.Config) bool {
	return conf.EnableRateLimit
}
