package coordinator

import (
	"time"
)

// GenerationQueue 有界 FIFO 任务队列
//
// 队列满时立即拒绝而不是阻塞提交方（reject-on-full 背压策略），HTTP 层
// 可以直接返回 503 让客户端稍后重试，而不是挂起请求
type GenerationQueue struct {
	ch chan *GenerationRequest
}

func NewGenerationQueue(size int) *GenerationQueue {
	if size <= 0 {
		size = 50
	}

	return &GenerationQueue{ch: make(chan *GenerationRequest, size)}
}

// Enqueue 入队，队列已满时立即返回 ErrQueueFull，永不阻塞
func (q *GenerationQueue) Enqueue(rec *GenerationRequest) error {
	select {
	case q.ch <- rec:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue 出队，最多阻塞 timeout；等待窗口内队列始终为空返回 ErrIdle，
// 取出 nil 记录表示收到关闭信号
func (q *GenerationQueue) Dequeue(timeout time.Duration) (*GenerationRequest, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case rec := <-q.ch:
		return rec, nil
	case <-timer.C:
		return nil, ErrIdle
	}
}

// Shutdown 发送一个关闭信号（nil 记录），每个 worker 需要一个；
// 队列满时会阻塞，直到 worker 消费腾出空间
func (q *GenerationQueue) Shutdown() {
	q.ch <- nil
}

// Len 当前排队中的请求数量
func (q *GenerationQueue) Len() int {
	return len(q.ch)
}
