package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mylxsw/asteria/formatter"
	"github.com/mylxsw/asteria/level"
	"github.com/mylxsw/asteria/log"
	"github.com/mylxsw/asteria/writer"
	"github.com/mylxsw/glacier/infra"
	"github.com/mylxsw/glacier/starter/app"

	"github.com/mylxsw/krea-server/config"
	"github.com/mylxsw/krea-server/internal/coordinator"
	"github.com/mylxsw/krea-server/internal/jobs"
	"github.com/mylxsw/krea-server/pkg/ai/flux"
	"github.com/mylxsw/krea-server/pkg/redis"
	"github.com/mylxsw/krea-server/server"
)

var GitCommit string
var Version string

func main() {
	ins := app.Create(fmt.Sprintf("%s(%s)", Version, GitCommit), 3).WithYAMLFlag("conf")

	// 命令行选项（使用配置文件的话，只需要指定 `--conf 配置文件地址`，格式为 YAML）

	ins.AddStringFlag("listen", ":8080", "Web 服务监听地址")
	ins.AddFlags(app.StringEnvFlag("api-token", "", "API 访问令牌，留空则不鉴权", "KREA_API_TOKEN"))
	ins.AddStringFlag("prometheus-token", "", "Prometheus 监控访问密钥")
	ins.AddBoolFlag("enable-cors", "是否启用跨域支持")

	ins.AddStringFlag("flux-server", "http://127.0.0.1:7860", "FLUX 推理后端地址")
	ins.AddFlags(app.StringEnvFlag("flux-key", "", "FLUX 推理后端访问密钥", "FLUX_API_KEY"))
	ins.AddIntFlag("flux-timeout", 300, "单次生成调用超时时间（秒）")

	ins.AddIntFlag("queue-size", 50, "生成队列容量，队列满时提交直接被拒绝")
	ins.AddIntFlag("queue-workers", 1, "生成 worker 数量，推理后端支持并发调用时才可以调大")
	ins.AddIntFlag("result-cache-size", 100, "生成结果存储容量，超出后淘汰最旧的记录")
	ins.AddIntFlag("max-batch-size", 4, "批量生成单次最大 prompt 数量")
	ins.AddIntFlag("generate-timeout", 300, "同步生成接口等待超时时间（秒）")

	ins.AddBoolFlag("enable-ratelimit", "是否启用基于客户端 IP 的请求限流，需要 Redis")
	ins.AddStringFlag("redis-host", "127.0.0.1", "redis host")
	ins.AddIntFlag("redis-port", 6379, "redis port")
	ins.AddStringFlag("redis-password", "", "redis password")

	ins.AddBoolFlag("enable-scheduler", "是否启用定时任务")

	ins.AddStringFlag("log-path", "", "日志文件存储目录，留空则写入到标准输出")

	// 配置文件
	config.Register(ins)

	// 日志配置
	ins.Init(func(f infra.FlagContext) error {
		log.All().LogFormatter(formatter.NewJSONFormatter())
		if f.String("log-path") != "" {
			log.All().LogWriter(writer.NewDefaultRotatingFileWriter(context.TODO(), func(le level.Level, module string) string {
				return filepath.Join(f.String("log-path"), fmt.Sprintf("%s.%s.log", le.GetLevelName(), time.Now().Format("20060102")))
			}))
		}

		return nil
	})

	// 配置要加载的服务模块
	ins.Provider(
		server.Provider{},
		coordinator.Provider{},
		flux.Provider{},
		redis.Provider{},
		jobs.Provider{},
	)

	app.MustRun(ins)
}
