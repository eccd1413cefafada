package coordinator

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Status is the lifecycle state of a generation request.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal 判断状态是否为终态，终态的请求不会再发生状态变更
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

const (
	DefaultSteps    = 30
	DefaultGuidance = 4.0
	DefaultWidth    = 1024
	DefaultHeight   = 1024

	MaxPromptLength = 1000
)

// GenerationParams 图片生成参数，提交时一次性完成校验，入队后不再变更
type GenerationParams struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	Guidance       float64 `json:"guidance,omitempty"`
	Seed           int64   `json:"seed,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	NumImages      int     `json:"num_images,omitempty"`
}

// Normalize 填充默认值并校验参数范围，宽高自动对齐到 8 的倍数
// 注意：不校验 Prompt，Prompt 的校验由 ValidatePrompt 单独完成（批量提交时共享参数没有 Prompt）
func (params *GenerationParams) Normalize() error {
	if params.Steps == 0 {
		params.Steps = DefaultSteps
	}
	if params.Guidance == 0 {
		params.Guidance = DefaultGuidance
	}
	if params.Width == 0 {
		params.Width = DefaultWidth
	}
	if params.Height == 0 {
		params.Height = DefaultHeight
	}
	if params.NumImages == 0 {
		params.NumImages = 1
	}
	// seed 为 0 或 -1 都表示随机种子，由推理后端解析
	if params.Seed == 0 {
		params.Seed = -1
	}

	if params.Steps < 20 || params.Steps > 50 {
		return fmt.Errorf("steps must be between 20 and 50, got %d", params.Steps)
	}
	if params.Guidance < 1.0 || params.Guidance > 10.0 {
		return fmt.Errorf("guidance must be between 1.0 and 10.0, got %v", params.Guidance)
	}
	if params.Seed < -1 || params.Seed > 999999999 {
		return fmt.Errorf("seed must be between -1 and 999999999, got %d", params.Seed)
	}
	if params.Width < 512 || params.Width > 2048 {
		return fmt.Errorf("width must be between 512 and 2048, got %d", params.Width)
	}
	if params.Height < 512 || params.Height > 2048 {
		return fmt.Errorf("height must be between 512 and 2048, got %d", params.Height)
	}
	if params.NumImages < 1 || params.NumImages > 4 {
		return fmt.Errorf("num_images must be between 1 and 4, got %d", params.NumImages)
	}

	params.Width = params.Width / 8 * 8
	params.Height = params.Height / 8 * 8

	return nil
}

// ValidatePrompt 校验提示语
func ValidatePrompt(prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return fmt.Errorf("prompt is required")
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		return fmt.Errorf("prompt must be at most %d characters", MaxPromptLength)
	}

	return nil
}

// GenerationResult 生成成功后的结果，终态写入后不再变更
type GenerationResult struct {
	// Images data-URI 格式的图片列表
	Images []string `json:"images"`
	// Seed 实际使用的随机种子（请求种子为 -1 时由后端随机解析）
	Seed int64 `json:"seed"`
	// Duration 生成耗时（秒）
	Duration float64 `json:"duration"`
}

// GenerationRequest 一次图片生成请求的完整状态记录
//
// 记录创建后由 ResultStore 和 GenerationQueue 共同持有；worker 取出后
// 独占修改权，直到进入终态；所有字段的读写都必须经过 ResultStore 的互斥锁，
// 避免多字段状态变更被部分读取
type GenerationRequest struct {
	ID     string           `json:"id"`
	Params GenerationParams `json:"params"`

	Status Status `json:"status"`
	// Progress 0-100，processing 期间单调递增；进度值为粗粒度的检查点
	// (10/30/80/100)，不反映真实的推理步数
	Progress int `json:"progress"`

	// Result 仅在 Status == completed 时存在
	Result *GenerationResult `json:"result,omitempty"`
	// Error 仅在 Status == failed 时存在
	Error string `json:"error,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}
