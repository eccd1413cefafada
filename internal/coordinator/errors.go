package coordinator

import "errors"

var (
	// ErrNotFound 请求不存在（从未提交过，或者已经被缓存淘汰）
	ErrNotFound = errors.New("request not found")
	// ErrDuplicateID 请求 ID 已存在
	ErrDuplicateID = errors.New("request id already exists")
	// ErrQueueFull 队列已满，属于临时性错误，调用方稍后重试即可
	ErrQueueFull = errors.New("generation queue is full")
	// ErrIdle 队列在等待窗口内始终为空，worker 正常空转，不是错误状态，
	// 用于和关闭信号（nil 记录）区分
	ErrIdle = errors.New("generation queue is idle")
	// ErrWaitTimeout 同步等待超时；请求本身不会被取消，worker 仍会继续处理，
	// 调用方之后可以通过 Progress 查询到最终结果
	ErrWaitTimeout = errors.New("timed out waiting for generation result")
)
