package jobs

import (
	"time"

	"github.com/mylxsw/asteria/log"
	"github.com/mylxsw/glacier/infra"
	"github.com/mylxsw/glacier/scheduler"
	cronV3 "github.com/robfig/cron/v3"
)

type Provider struct{}

func (p Provider) Aggregates() []infra.Provider {
	return []infra.Provider{
		scheduler.Provider(p.Jobs),
	}
}

func (Provider) Register(binder infra.Binder) {
	binder.MustSingleton(func() *cronV3.Cron {
		log.Debugf("初始化定时任务管理器, Location=%s", time.Local.String())
		return cronV3.New(
			cronV3.WithSeconds(),
			cronV3.WithLogger(cronLogger{}),
			cronV3.WithLocation(time.Local),
		)
	})
}

func (Provider) Jobs(cc infra.Resolver, creator scheduler.JobCreator) {
	// 每分钟探测一次推理后端
	if err := creator.Add(
		"backend-healthcheck",
		"0 * * * * *",
		scheduler.WithoutOverlap(BackendHealthCheckJob),
	); err != nil {
		log.Errorf("注册定时任务 backend-healthcheck 失败: %v", err)
	}

	// 每分钟兜底执行一次结果存储淘汰
	if err := creator.Add(
		"store-gc",
		"30 * * * * *",
		scheduler.WithoutOverlap(StoreGCJob),
	); err != nil {
		log.Errorf("注册定时任务 store-gc 失败: %v", err)
	}
}

func (Provider) ShouldLoad(c infra.FlagContext) bool {
	return c.Bool("enable-scheduler")
}

type cronLogger struct {
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	// Just drop it, we don't care
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Errorf("[glacier] %s: %v", msg, err)
}
