package jobs

import (
	"context"
	"time"

	"github.com/mylxsw/asteria/log"

	"github.com/mylxsw/krea-server/pkg/ai/flux"
	"github.com/mylxsw/krea-server/pkg/metrics"
)

// BackendHealthCheckJob 定期探测推理后端，托管 Notebook 环境随时可能被回收，
// 探测失败只告警不干预，请求路径上有独立的就绪检查
func BackendHealthCheckJob(ctx context.Context, client *flux.Flux) error {
	backendUpMetric := metrics.BuildCounterVec(
		"krea",
		"backend_healthcheck_count",
		"inference backend healthcheck counts",
		[]string{"status"},
	)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		backendUpMetric.WithLabelValues("unreachable").Inc()
		log.Warningf("inference backend is unreachable: %v", err)
		return nil
	}

	backendUpMetric.WithLabelValues(health.Status).Inc()

	if !health.ModelLoaded {
		log.F(log.M{"status": health.Status}).Warningf("inference backend model is not loaded")
	}

	return nil
}
