package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mylxsw/asteria/log"
	"github.com/mylxsw/krea-server/config"
	"github.com/mylxsw/krea-server/pkg/misc"
)

// Backend 图片生成后端，对协调器来说是一个不透明的同步调用
//
// 默认认为后端不可重入：同一时刻只允许一个调用在执行（worker 数量为 1），
// 只有后端自身支持并发调用时才可以把 worker 数量调大
type Backend interface {
	Generate(ctx context.Context, params GenerationParams) (*BackendResult, error)
}

// BackendFunc 函数式的 Backend 实现
type BackendFunc func(ctx context.Context, params GenerationParams) (*BackendResult, error)

func (fn BackendFunc) Generate(ctx context.Context, params GenerationParams) (*BackendResult, error) {
	return fn(ctx, params)
}

// MemoryReclaimer 后端资源回收钩子，worker 每个处理周期结束后尽力调用一次，
// 抑制推理后端的内存增长；后端不支持时实现为空操作即可
type MemoryReclaimer interface {
	ReclaimMemory(ctx context.Context)
}

// BackendResult 后端返回的生成结果
type BackendResult struct {
	// Images data-URI 格式的图片列表
	Images []string
	// Seed 后端实际使用的随机种子
	Seed int64
}

// Coordinator 生成请求协调器，持有结果存储和任务队列，是进程内唯一的
// 请求编排入口；HTTP 处理器和 worker 之间只通过队列和存储通信，
// 处理器不会直接调用生成后端
type Coordinator struct {
	conf    *config.Config
	backend Backend

	store *ResultStore
	queue *GenerationQueue

	workers        int
	waitTimeout    time.Duration
	pollInterval   time.Duration
	dequeueTimeout time.Duration
	backendTimeout time.Duration

	startOnce sync.Once
}

func New(conf *config.Config, backend Backend) *Coordinator {
	workers := conf.QueueWorkers
	if workers <= 0 {
		workers = 1
	}

	waitTimeout := time.Duration(conf.GenerateTimeout) * time.Second
	if waitTimeout <= 0 {
		waitTimeout = 300 * time.Second
	}

	backendTimeout := time.Duration(conf.FluxTimeout) * time.Second
	if backendTimeout <= 0 {
		backendTimeout = 300 * time.Second
	}

	return &Coordinator{
		conf:           conf,
		backend:        backend,
		store:          NewResultStore(conf.ResultCacheSize),
		queue:          NewGenerationQueue(conf.QueueSize),
		workers:        workers,
		waitTimeout:    waitTimeout,
		pollInterval:   100 * time.Millisecond,
		dequeueTimeout: time.Second,
		backendTimeout: backendTimeout,
	}
}

// Submit 创建记录并入队，队列已满时回滚记录并返回 ErrQueueFull
func (c *Coordinator) Submit(params GenerationParams) (*GenerationRequest, error) {
	rec := &GenerationRequest{
		ID:        misc.UUID(),
		Params:    params,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}

	if err := c.store.Put(rec); err != nil {
		return nil, err
	}

	if err := c.queue.Enqueue(rec); err != nil {
		c.store.Remove(rec.ID)
		return nil, err
	}

	return rec, nil
}

// SubmitAndWait 提交请求并同步等待结果，直到请求进入终态或者等待超时
//
// 等待是固定间隔（100ms）的协作式轮询，超时后返回 ErrWaitTimeout 和当前
// 时刻的记录快照；超时不会取消请求，worker 仍会继续处理
func (c *Coordinator) SubmitAndWait(ctx context.Context, params GenerationParams) (GenerationRequest, error) {
	rec, err := c.Submit(params)
	if err != nil {
		return GenerationRequest{}, err
	}

	return c.Wait(ctx, rec)
}

// Wait 轮询记录直到终态或者超时
func (c *Coordinator) Wait(ctx context.Context, rec *GenerationRequest) (GenerationRequest, error) {
	deadline := time.Now().Add(c.waitTimeout)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		snapshot := c.store.Snapshot(rec)
		if snapshot.Status.IsTerminal() {
			return snapshot, nil
		}

		if time.Now().After(deadline) {
			return snapshot, ErrWaitTimeout
		}

		select {
		case <-ctx.Done():
			// 客户端放弃等待，请求不取消，之后仍可以通过 Progress 查询
			return snapshot, ErrWaitTimeout
		case <-ticker.C:
		}
	}
}

// SubmitBatch 批量提交，每个 prompt 独立创建一条记录并入队
//
// 中途队列满时停止提交，返回已经成功入队的 ID 列表，部分成功是明确的
// 语义而不是整体回滚；一个都没能入队时返回 ErrQueueFull
func (c *Coordinator) SubmitBatch(prompts []string, shared GenerationParams) ([]string, error) {
	ids := make([]string, 0, len(prompts))
	for _, prompt := range prompts {
		params := shared
		params.Prompt = prompt
		params.NumImages = 1

		rec, err := c.Submit(params)
		if err != nil {
			if errors.Is(err, ErrQueueFull) {
				break
			}

			return ids, err
		}

		ids = append(ids, rec.ID)
	}

	if len(ids) == 0 {
		return nil, ErrQueueFull
	}

	return ids, nil
}

// Progress 按 ID 查询请求当前状态的只读快照
func (c *Coordinator) Progress(id string) (GenerationRequest, error) {
	return c.store.Get(id)
}

// QueueLen 当前排队中的请求数量
func (c *Coordinator) QueueLen() int {
	return c.queue.Len()
}

// ActiveRequests 当前处理中的请求数量
func (c *Coordinator) ActiveRequests() int {
	return c.store.CountByStatus(StatusProcessing)
}

// EvictOverCapacity 手动触发一次结果存储淘汰，定时任务兜底用，
// worker 每个周期结束后本来就会执行一次
func (c *Coordinator) EvictOverCapacity() int {
	return c.store.EvictIfOverCapacity()
}

// Run 启动 worker 并阻塞运行，ctx 结束后向队列发送关闭信号并等待所有
// worker 退出；worker 只会因为关闭信号退出，单个请求失败不会终止 worker
func (c *Coordinator) Run(ctx context.Context) {
	c.startOnce.Do(func() {
		var wg sync.WaitGroup
		wg.Add(c.workers)

		for i := 0; i < c.workers; i++ {
			name := misc.ShortUUID()
			go func() {
				defer wg.Done()
				c.runWorker(name)
			}()
		}

		log.Debugf("%d generation worker(s) started", c.workers)

		<-ctx.Done()

		for i := 0; i < c.workers; i++ {
			c.queue.Shutdown()
		}

		wg.Wait()
	})
}
