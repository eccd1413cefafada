package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/mylxsw/glacier/infra"
	"github.com/mylxsw/glacier/web"
	"github.com/pkg/errors"

	"github.com/mylxsw/krea-server/internal/coordinator"
	"github.com/mylxsw/krea-server/server/controllers/common"
)

// TaskController 生成任务进度查询接口
type TaskController struct {
	coord *coordinator.Coordinator `autowire:"@"`
}

func NewTaskController(resolver infra.Resolver) web.Controller {
	ctl := TaskController{}
	resolver.MustAutoWire(&ctl)
	return &ctl
}

func (ctl *TaskController) Register(router web.Router) {
	router.Group("/progress", func(router web.Router) {
		router.Get("/{id}", ctl.Progress)
	})
}

// Progress 查询任务进度，任务完成后附带生成结果
//
// 结果存储超容后最旧的记录会被淘汰，淘汰后的任务查询返回 404
func (ctl *TaskController) Progress(ctx context.Context, webCtx web.Context) web.Response {
	id := webCtx.PathVar("id")
	if id == "" {
		return webCtx.JSONError(common.ErrInvalidRequest, http.StatusBadRequest)
	}

	rec, err := ctl.coord.Progress(id)
	if err != nil {
		if errors.Is(err, coordinator.ErrNotFound) {
			return webCtx.JSONError(common.ErrNotFound, http.StatusNotFound)
		}

		return webCtx.JSONError(common.ErrInternalError, http.StatusInternalServerError)
	}

	ret := web.M{
		"request_id": rec.ID,
		"status":     rec.Status,
		"progress":   rec.Progress,
		"created_at": rec.CreatedAt.Format(time.RFC3339),
	}

	if rec.Result != nil {
		ret["result"] = rec.Result
	}

	if rec.Error != "" {
		ret["error"] = rec.Error
	}

	return webCtx.JSON(ret)
}
