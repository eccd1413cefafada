package common

const (
	ErrInvalidRequest    = "请求参数错误"
	ErrInternalError     = "很抱歉，我们的服务暂时出现了点问题，但我们正在全力修复。请您稍后再试，感谢您的耐心等待。"
	ErrNotFound          = "资源不存在"
	ErrQueueFull         = "当前生成任务较多，请稍后再试"
	ErrModelLoading      = "模型正在加载中，请稍后再试"
	ErrRateLimitExceeded = "请求频率过高，请稍后再试"
)
