package config

import (
	"fmt"

	"github.com/mylxsw/glacier/infra"
	"github.com/mylxsw/glacier/starter/app"
)

type Config struct {
	// Listen 监听地址
	Listen string `json:"listen" yaml:"listen"`
	// APIToken 服务通过隧道公开暴露时的访问令牌，留空则不鉴权
	APIToken string `json:"-" yaml:"api_token"`
	// Prometheus 监控访问密钥
	PrometheusToken string `json:"-" yaml:"prometheus_token"`
	// 是否启用跨域支持（前端应用跨域直连时需要开启）
	EnableCORS bool `json:"enable_cors" yaml:"enable_cors"`

	// FLUX 推理后端配置
	FluxServer string `json:"flux_server" yaml:"flux_server"`
	FluxKey    string `json:"-" yaml:"flux_key"`
	// FluxTimeout 单次生成调用的超时时间（秒）
	FluxTimeout int `json:"flux_timeout" yaml:"flux_timeout"`

	// QueueSize 生成队列容量，队列满时提交直接被拒绝
	QueueSize int `json:"queue_size" yaml:"queue_size"`
	// QueueWorkers 生成 worker 数量；推理后端默认不可重入，除非后端支持
	// 并发调用，否则保持默认值 1
	QueueWorkers int `json:"queue_workers" yaml:"queue_workers"`
	// ResultCacheSize 结果存储容量，超出后淘汰最旧的记录
	ResultCacheSize int `json:"result_cache_size" yaml:"result_cache_size"`
	// MaxBatchSize 批量提交的最大 prompt 数量
	MaxBatchSize int `json:"max_batch_size" yaml:"max_batch_size"`
	// GenerateTimeout 同步生成接口的等待超时时间（秒）
	GenerateTimeout int `json:"generate_timeout" yaml:"generate_timeout"`

	// 基于客户端 IP 的请求限流，需要 Redis
	EnableRateLimit bool   `json:"enable_rate_limit" yaml:"enable_rate_limit"`
	RedisHost       string `json:"redis_host" yaml:"redis_host"`
	RedisPort       int    `json:"redis_port" yaml:"redis_port"`
	RedisPassword   string `json:"-" yaml:"redis_password"`

	// 是否启用定时任务执行器
	EnableScheduler bool `json:"enable_scheduler" yaml:"enable_scheduler"`
}

func (conf *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", conf.RedisHost, conf.RedisPort)
}

func Register(ins *app.App) {
	ins.Singleton(func(ctx infra.FlagContext) *Config {
		return &Config{
			Listen:          ctx.String("listen"),
			APIToken:        ctx.String("api-token"),
			PrometheusToken: ctx.String("prometheus-token"),
			EnableCORS:      ctx.Bool("enable-cors"),

			FluxServer:  ctx.String("flux-server"),
			FluxKey:     ctx.String("flux-key"),
			FluxTimeout: ctx.Int("flux-timeout"),

			QueueSize:       ctx.Int("queue-size"),
			QueueWorkers:    ctx.Int("queue-workers"),
			ResultCacheSize: ctx.Int("result-cache-size"),
			MaxBatchSize:    ctx.Int("max-batch-size"),
			GenerateTimeout: ctx.Int("generate-timeout"),

			EnableRateLimit: ctx.Bool("enable-ratelimit"),
			RedisHost:       ctx.String("redis-host"),
			RedisPort:       ctx.Int("redis-port"),
			RedisPassword:   ctx.String("redis-password"),

			EnableScheduler: ctx.Bool("enable-scheduler"),
		}
	})
}
