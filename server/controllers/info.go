package controllers

import (
	"context"

	"github.com/mylxsw/glacier/web"

	"github.com/mylxsw/krea-server/config"
)

// InfoController 服务自描述信息，无需鉴权
type InfoController struct {
	conf *config.Config
}

func NewInfoController(conf *config.Config) web.Controller {
	return &InfoController{conf: conf}
}

func (ctl *InfoController) Register(router web.Router) {
	router.Group("/info", func(router web.Router) {
		router.Get("/", ctl.Info)
	})
}

func (ctl *InfoController) Info(ctx context.Context, webCtx web.Context) web.Response {
	return webCtx.JSON(web.M{
		"name":  "KREA Image Generation Server",
		"model": "FLUX.1 with T5-XXL",
		"features": []string{
			"Queue-based processing",
			"Batch generation up to 4 images",
			"Real-time progress tracking",
			"Synchronous generation with long-poll wait",
		},
		"endpoints": web.M{
			"generate": "/v1/generate",
			"batch":    "/v1/generate/batch",
			"progress": "/v1/progress/{request_id}",
			"status":   "/v1/status",
			"models":   "/v1/models",
			"health":   "/health",
		},
	})
}
