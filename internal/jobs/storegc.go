package jobs

import (
	"context"

	"github.com/mylxsw/asteria/log"

	"github.com/mylxsw/krea-server/internal/coordinator"
)

// StoreGCJob 结果存储淘汰兜底任务
//
// worker 每个处理周期结束后会执行一次淘汰，正常情况下这里不会有活干；
// worker 长时间阻塞在慢后端调用上时由该任务兜底
func StoreGCJob(ctx context.Context, coord *coordinator.Coordinator) error {
	if evicted := coord.EvictOverCapacity(); evicted > 0 {
		log.F(log.M{"evicted": evicted}).Infof("evicted %d stale generation records", evicted)
	}

	return nil
}
