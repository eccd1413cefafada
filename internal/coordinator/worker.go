package coordinator

import (
	"context"
	"time"

	"github.com/mylxsw/asteria/log"
	"github.com/mylxsw/krea-server/pkg/metrics"
	"github.com/mylxsw/krea-server/pkg/misc"
)

// runWorker worker 主循环：出队 -> 调用生成后端 -> 回写结果 -> 触发淘汰和资源回收
//
// 出队超时（队列空闲）不是错误，继续下一轮；后端调用的任何错误都在这里
// 被兜住并转化为记录的 failed 终态，不会从循环中向外传播
func (c *Coordinator) runWorker(name string) {
	log.Debugf("generation worker %s started", name)

	genCounter := metrics.BuildCounterVec(
		"krea",
		"generation_count",
		"image generation counts",
		[]string{"status"},
	)

	for {
		rec, err := c.queue.Dequeue(c.dequeueTimeout)
		if err != nil {
			continue
		}

		if rec == nil {
			log.Debugf("generation worker %s stopped", name)
			return
		}

		c.process(rec)
		genCounter.WithLabelValues(string(c.store.Snapshot(rec).Status)).Inc()

		if evicted := c.store.EvictIfOverCapacity(); evicted > 0 {
			log.Debugf("result store over capacity, evicted %d oldest record(s)", evicted)
		}

		c.reclaimMemory()
	}
}

// process 处理单个请求，把记录从 queued 推进到终态
func (c *Coordinator) process(rec *GenerationRequest) {
	log.F(log.M{"id": rec.ID, "prompt": misc.SubString(rec.Params.Prompt, 50)}).
		Debugf("processing generation request")

	c.store.Update(rec, func(rec *GenerationRequest) {
		rec.Status = StatusProcessing
		rec.StartedAt = time.Now()
		rec.Progress = 10
	})

	// 调用后端前的检查点，粗粒度的启发式进度，不代表真实推理步数
	c.store.Update(rec, func(rec *GenerationRequest) {
		rec.Progress = 30
	})

	ctx, cancel := context.WithTimeout(context.Background(), c.backendTimeout)
	defer cancel()

	result, err := c.backend.Generate(ctx, rec.Params)
	if err != nil {
		log.F(log.M{"id": rec.ID}).Errorf("generation failed: %v", err)

		c.store.Update(rec, func(rec *GenerationRequest) {
			rec.Status = StatusFailed
			rec.Error = err.Error()
			rec.CompletedAt = time.Now()
		})

		return
	}

	c.store.Update(rec, func(rec *GenerationRequest) {
		rec.Progress = 80
	})

	completedAt := time.Now()
	var duration float64
	c.store.Update(rec, func(rec *GenerationRequest) {
		duration = completedAt.Sub(rec.StartedAt).Seconds()
		rec.Result = &GenerationResult{
			Images:   result.Images,
			Seed:     result.Seed,
			Duration: duration,
		}
		rec.Status = StatusCompleted
		rec.Progress = 100
		rec.CompletedAt = completedAt
	})

	log.F(log.M{"id": rec.ID}).Debugf("generation completed in %.1fs", duration)
}

// reclaimMemory 每个处理周期结束后尽力触发一次后端资源回收
func (c *Coordinator) reclaimMemory() {
	reclaimer, ok := c.backend.(MemoryReclaimer)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reclaimer.ReclaimMemory(ctx)
}
