package controllers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mylxsw/glacier/infra"
	"github.com/mylxsw/glacier/web"
	"github.com/pkg/errors"

	"github.com/mylxsw/krea-server/config"
	"github.com/mylxsw/krea-server/internal/coordinator"
	"github.com/mylxsw/krea-server/pkg/ai/flux"
	"github.com/mylxsw/krea-server/server/controllers/common"
)

// GenerateController 图片生成接口
type GenerateController struct {
	conf   *config.Config
	coord  *coordinator.Coordinator `autowire:"@"`
	client *flux.Flux               `autowire:"@"`
}

func NewGenerateController(resolver infra.Resolver, conf *config.Config) web.Controller {
	ctl := GenerateController{conf: conf}
	resolver.MustAutoWire(&ctl)
	return &ctl
}

func (ctl *GenerateController) Register(router web.Router) {
	router.Group("/generate", func(router web.Router) {
		router.Post("/", ctl.Generate)
		router.Post("/batch", ctl.GenerateBatch)
	})
}

// Generate 同步生成单张（或一批）图片
//
// 请求入队后阻塞等待结果，等待超时不取消任务，客户端可以拿着 request_id
// 继续通过进度接口查询
func (ctl *GenerateController) Generate(ctx context.Context, webCtx web.Context) web.Response {
	var params coordinator.GenerationParams
	if err := webCtx.Unmarshal(&params); err != nil {
		return webCtx.JSONError(common.ErrInvalidRequest, http.StatusBadRequest)
	}

	if err := coordinator.ValidatePrompt(params.Prompt); err != nil {
		return webCtx.JSONError(err.Error(), http.StatusBadRequest)
	}

	if err := params.Normalize(); err != nil {
		return webCtx.JSONError(err.Error(), http.StatusBadRequest)
	}

	// 模型加载期间直接拒绝，避免请求在队列里白白等待
	if !ctl.client.Ready(ctx) {
		return webCtx.JSONError(common.ErrModelLoading, http.StatusServiceUnavailable)
	}

	rec, err := ctl.coord.SubmitAndWait(ctx, params)
	if err != nil {
		if errors.Is(err, coordinator.ErrQueueFull) {
			return webCtx.JSONError(common.ErrQueueFull, http.StatusServiceUnavailable)
		}

		if errors.Is(err, coordinator.ErrWaitTimeout) {
			return webCtx.JSON(web.M{
				"success":    false,
				"request_id": rec.ID,
				"error":      "generation timeout",
			})
		}

		return webCtx.JSONError(common.ErrInternalError, http.StatusInternalServerError)
	}

	if rec.Status == coordinator.StatusFailed {
		return webCtx.JSON(web.M{
			"success":    false,
			"request_id": rec.ID,
			"error":      rec.Error,
		})
	}

	return webCtx.JSON(web.M{
		"success":    true,
		"request_id": rec.ID,
		"image":      rec.Result.Images[0],
		"images":     rec.Result.Images,
		"seed":       rec.Result.Seed,
		"duration":   rec.Result.Duration,
	})
}

// BatchGenerateRequest 批量生成请求，每个 prompt 生成一张图片，共享其余参数
type BatchGenerateRequest struct {
	Prompts        []string `json:"prompts"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Steps          int      `json:"steps,omitempty"`
	Guidance       float64  `json:"guidance,omitempty"`
	Seed           int64    `json:"seed,omitempty"`
	Width          int      `json:"width,omitempty"`
	Height         int      `json:"height,omitempty"`
}

// GenerateBatch 批量提交生成请求，立即返回已入队的 request_id 列表
//
// 中途队列满时为部分成功，返回已入队的部分，客户端按 request_ids
// 逐个轮询进度
func (ctl *GenerateController) GenerateBatch(ctx context.Context, webCtx web.Context) web.Response {
	var req BatchGenerateRequest
	if err := webCtx.Unmarshal(&req); err != nil {
		return webCtx.JSONError(common.ErrInvalidRequest, http.StatusBadRequest)
	}

	maxBatchSize := ctl.conf.MaxBatchSize
	if maxBatchSize <= 0 {
		maxBatchSize = 4
	}

	if len(req.Prompts) == 0 {
		return webCtx.JSONError("prompts is required", http.StatusBadRequest)
	}

	if len(req.Prompts) > maxBatchSize {
		return webCtx.JSONError(fmt.Sprintf("at most %d prompts per batch", maxBatchSize), http.StatusBadRequest)
	}

	for _, prompt := range req.Prompts {
		if err := coordinator.ValidatePrompt(prompt); err != nil {
			return webCtx.JSONError(err.Error(), http.StatusBadRequest)
		}
	}

	shared := coordinator.GenerationParams{
		NegativePrompt: req.NegativePrompt,
		Steps:          req.Steps,
		Guidance:       req.Guidance,
		Seed:           req.Seed,
		Width:          req.Width,
		Height:         req.Height,
	}
	if err := shared.Normalize(); err != nil {
		return webCtx.JSONError(err.Error(), http.StatusBadRequest)
	}

	if !ctl.client.Ready(ctx) {
		return webCtx.JSONError(common.ErrModelLoading, http.StatusServiceUnavailable)
	}

	ids, err := ctl.coord.SubmitBatch(req.Prompts, shared)
	if err != nil {
		if errors.Is(err, coordinator.ErrQueueFull) {
			return webCtx.JSONError(common.ErrQueueFull, http.StatusServiceUnavailable)
		}

		return webCtx.JSONError(common.ErrInternalError, http.StatusInternalServerError)
	}

	return webCtx.JSON(web.M{
		"success":     true,
		"request_ids": ids,
		"message":     fmt.Sprintf("queued %d images for generation", len(ids)),
	})
}
