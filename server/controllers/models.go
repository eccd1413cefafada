package controllers

import (
	"context"
	"net/http"

	"github.com/mylxsw/asteria/log"
	"github.com/mylxsw/glacier/infra"
	"github.com/mylxsw/glacier/web"

	"github.com/mylxsw/krea-server/config"
	"github.com/mylxsw/krea-server/internal/coordinator"
	"github.com/mylxsw/krea-server/pkg/ai/flux"
	"github.com/mylxsw/krea-server/server/controllers/common"
)

// ModelController 推理后端状态、健康与模型信息接口
type ModelController struct {
	conf   *config.Config           `autowire:"@"`
	coord  *coordinator.Coordinator `autowire:"@"`
	client *flux.Flux               `autowire:"@"`
}

func NewModelController(resolver infra.Resolver) web.Controller {
	ctl := ModelController{}
	resolver.MustAutoWire(&ctl)
	return &ctl
}

func (ctl *ModelController) Register(router web.Router) {
	router.Group("/status", func(router web.Router) {
		router.Get("/", ctl.Status)
	})
	router.Group("/health", func(router web.Router) {
		router.Get("/", ctl.Health)
	})
	router.Group("/models", func(router web.Router) {
		router.Get("/", ctl.Models)
	})
}

// Status 服务状态：推理后端的模型加载状态，叠加本服务的队列水位
//
// 推理后端探测失败时不报错，返回 unreachable，队列信息依然有效
func (ctl *ModelController) Status(ctx context.Context, webCtx web.Context) web.Response {
	workers := ctl.conf.QueueWorkers
	if workers <= 0 {
		workers = 1
	}

	ret := web.M{
		"queue_size":      ctl.coord.QueueLen(),
		"active_requests": ctl.coord.ActiveRequests(),
		"workers":         workers,
	}

	status, err := ctl.client.Status(ctx)
	if err != nil {
		log.Warningf("query inference server status failed: %v", err)

		ret["status"] = "unreachable"
		ret["progress"] = 0
		ret["model_loaded"] = false
		return webCtx.JSON(ret)
	}

	ret["status"] = status.Status
	ret["progress"] = status.Progress
	ret["model_loaded"] = status.ModelLoaded
	if status.Device != "" {
		ret["device"] = status.Device
	}

	return webCtx.JSON(ret)
}

// Health 推理后端健康信息透传，GPU 显存占用等
func (ctl *ModelController) Health(ctx context.Context, webCtx web.Context) web.Response {
	health, err := ctl.client.Health(ctx)
	if err != nil {
		return webCtx.JSONWithCode(web.M{"status": "unreachable"}, http.StatusServiceUnavailable)
	}

	return webCtx.JSON(health)
}

// Models 可用模型列表
func (ctl *ModelController) Models(ctx context.Context, webCtx web.Context) web.Response {
	models, err := ctl.client.Models(ctx)
	if err != nil {
		log.Errorf("query inference server models failed: %v", err)
		return webCtx.JSONError(common.ErrInternalError, http.StatusInternalServerError)
	}

	return webCtx.JSON(web.M{"models": models})
}
