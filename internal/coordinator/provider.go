package coordinator

import (
	"context"

	"github.com/mylxsw/glacier/infra"
	"github.com/mylxsw/krea-server/config"
	"github.com/mylxsw/krea-server/pkg/ai/flux"
)

type Provider struct{}

func (Provider) Register(binder infra.Binder) {
	binder.MustSingleton(func(conf *config.Config, client *flux.Flux) *Coordinator {
		return New(conf, &fluxBackend{client: client})
	})
}

// Daemon 运行 worker，进程退出时通过关闭信号优雅停止
func (Provider) Daemon(ctx context.Context, resolver infra.Resolver) {
	resolver.MustResolve(func(coord *Coordinator) {
		coord.Run(ctx)
	})
}

// fluxBackend 把 FLUX 客户端适配成协调器的 Backend 接口
type fluxBackend struct {
	client *flux.Flux
}

func (b *fluxBackend) Generate(ctx context.Context, params GenerationParams) (*BackendResult, error) {
	resp, err := b.client.Generate(ctx, flux.GenerateRequest{
		Prompt:         params.Prompt,
		NegativePrompt: params.NegativePrompt,
		Steps:          params.Steps,
		Guidance:       params.Guidance,
		Seed:           params.Seed,
		Width:          params.Width,
		Height:         params.Height,
		NumImages:      params.NumImages,
	})
	if err != nil {
		return nil, err
	}

	return &BackendResult{Images: resp.Images, Seed: resp.Seed}, nil
}

func (b *fluxBackend) ReclaimMemory(ctx context.Context) {
	b.client.ReclaimMemory(ctx)
}
