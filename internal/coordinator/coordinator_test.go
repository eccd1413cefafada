package coordinator_test

import (
	"context"
	"testing"
	"time"

	"github.com/mylxsw/go-utils/assert"
	"github.com/pkg/errors"

	"github.com/mylxsw/krea-server/config"
	"github.com/mylxsw/krea-server/internal/coordinator"
)

func testConfig() *config.Config {
	return &config.Config{
		QueueSize:       10,
		QueueWorkers:    1,
		ResultCacheSize: 100,
		GenerateTimeout: 10,
		FluxTimeout:     10,
	}
}

func okBackend(images ...string) coordinator.BackendFunc {
	return func(ctx context.Context, params coordinator.GenerationParams) (*coordinator.BackendResult, error) {
		return &coordinator.BackendResult{Images: images, Seed: 42}, nil
	}
}

// startWorkers 启动协调器并返回停止函数
func startWorkers(coord *coordinator.Coordinator) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(done)
	}()

	return func() {
		cancel()
		<-done
	}
}

func TestSubmitAndWaitSuccess(t *testing.T) {
	coord := coordinator.New(testConfig(), okBackend("data:image/png;base64,xxx"))
	stop := startWorkers(coord)
	defer stop()

	params := coordinator.GenerationParams{Prompt: "a red fox"}
	assert.NoError(t, params.Normalize())

	rec, err := coord.SubmitAndWait(context.Background(), params)
	assert.NoError(t, err)

	assert.Equal(t, coordinator.StatusCompleted, rec.Status)
	assert.Equal(t, 100, rec.Progress)
	assert.True(t, rec.Result != nil)
	assert.Equal(t, 1, len(rec.Result.Images))
	assert.EqualValues(t, 42, rec.Result.Seed)
	assert.False(t, rec.CompletedAt.IsZero())

	// 完成后仍可以按 ID 查询到结果
	got, err := coord.Progress(rec.ID)
	assert.NoError(t, err)
	assert.Equal(t, coordinator.StatusCompleted, got.Status)
}

func TestGenerationFailureDoesNotKillWorker(t *testing.T) {
	backend := coordinator.BackendFunc(func(ctx context.Context, params coordinator.GenerationParams) (*coordinator.BackendResult, error) {
		if params.Prompt == "boom" {
			return nil, errors.New("CUDA out of memory")
		}

		return &coordinator.BackendResult{Images: []string{"data:image/png;base64,xxx"}, Seed: 1}, nil
	})

	coord := coordinator.New(testConfig(), backend)
	stop := startWorkers(coord)
	defer stop()

	failed, err := coord.SubmitAndWait(context.Background(), coordinator.GenerationParams{Prompt: "boom"})
	assert.NoError(t, err)
	assert.Equal(t, coordinator.StatusFailed, failed.Status)
	assert.Equal(t, "CUDA out of memory", failed.Error)
	assert.True(t, failed.Result == nil)

	// 失败只影响当前请求，worker 继续处理后续请求
	ok, err := coord.SubmitAndWait(context.Background(), coordinator.GenerationParams{Prompt: "a red fox"})
	assert.NoError(t, err)
	assert.Equal(t, coordinator.StatusCompleted, ok.Status)
}

func TestSubmitRejectedWhenQueueFull(t *testing.T) {
	conf := testConfig()
	conf.QueueSize = 2

	// 不启动 worker，队列不会被消费
	coord := coordinator.New(conf, okBackend("img"))

	_, err := coord.Submit(coordinator.GenerationParams{Prompt: "one"})
	assert.NoError(t, err)
	_, err = coord.Submit(coordinator.GenerationParams{Prompt: "two"})
	assert.NoError(t, err)

	_, err = coord.Submit(coordinator.GenerationParams{Prompt: "three"})
	assert.Equal(t, coordinator.ErrQueueFull, err)

	// 被拒绝的请求不会在存储中留下记录
	assert.Equal(t, 2, coord.QueueLen())
	assert.Equal(t, 0, coord.ActiveRequests())
}

func TestWaitTimeoutDoesNotCancelRequest(t *testing.T) {
	conf := testConfig()
	conf.GenerateTimeout = 1

	backend := coordinator.BackendFunc(func(ctx context.Context, params coordinator.GenerationParams) (*coordinator.BackendResult, error) {
		time.Sleep(2 * time.Second)
		return &coordinator.BackendResult{Images: []string{"img"}, Seed: 7}, nil
	})

	coord := coordinator.New(conf, backend)
	stop := startWorkers(coord)
	defer stop()

	rec, err := coord.SubmitAndWait(context.Background(), coordinator.GenerationParams{Prompt: "slow"})
	assert.Equal(t, coordinator.ErrWaitTimeout, err)
	assert.False(t, rec.Status.IsTerminal())

	// 超时不取消请求，worker 继续处理，之后通过 Progress 能查询到结果
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := coord.Progress(rec.ID)
		assert.NoError(t, err)
		if got.Status.IsTerminal() {
			assert.Equal(t, coordinator.StatusCompleted, got.Status)
			break
		}

		if time.Now().After(deadline) {
			t.Fatalf("request %s never reached a terminal status", rec.ID)
		}

		time.Sleep(100 * time.Millisecond)
	}
}

func TestSubmitBatchPartialSuccess(t *testing.T) {
	conf := testConfig()
	conf.QueueSize = 2

	// 不启动 worker，queue-size=2 时 4 个 prompt 只有前两个能入队
	coord := coordinator.New(conf, okBackend("img"))

	shared := coordinator.GenerationParams{Steps: 30, Guidance: 4.0}
	ids, err := coord.SubmitBatch([]string{"p1", "p2", "p3", "p4"}, shared)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(ids))
	assert.True(t, ids[0] != ids[1])

	for _, id := range ids {
		rec, err := coord.Progress(id)
		assert.NoError(t, err)
		assert.Equal(t, coordinator.StatusQueued, rec.Status)
		// 批量模式下每个 prompt 固定生成一张
		assert.Equal(t, 1, rec.Params.NumImages)
	}

	// 队列已满，一个都无法入队时整体失败
	_, err = coord.SubmitBatch([]string{"p5"}, shared)
	assert.Equal(t, coordinator.ErrQueueFull, err)
}

func TestSubmitBatchCompletes(t *testing.T) {
	coord := coordinator.New(testConfig(), okBackend("img"))
	stop := startWorkers(coord)
	defer stop()

	ids, err := coord.SubmitBatch([]string{"p1", "p2", "p3"}, coordinator.GenerationParams{})
	assert.NoError(t, err)
	assert.Equal(t, 3, len(ids))

	deadline := time.Now().Add(5 * time.Second)
	for _, id := range ids {
		for {
			rec, err := coord.Progress(id)
			assert.NoError(t, err)
			if rec.Status.IsTerminal() {
				assert.Equal(t, coordinator.StatusCompleted, rec.Status)
				break
			}

			if time.Now().After(deadline) {
				t.Fatalf("request %s never reached a terminal status", id)
			}

			time.Sleep(50 * time.Millisecond)
		}
	}
}

func TestProgressUnknownRequest(t *testing.T) {
	coord := coordinator.New(testConfig(), okBackend("img"))

	_, err := coord.Progress("no-such-id")
	assert.Equal(t, coordinator.ErrNotFound, err)
}
