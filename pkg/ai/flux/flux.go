package flux

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mylxsw/asteria/log"
	"github.com/mylxsw/krea-server/config"
	"github.com/mylxsw/krea-server/pkg/misc"
	"github.com/pkg/errors"
	"gopkg.in/resty.v1"
)

// Flux FLUX KREA 推理后端客户端
//
// 推理进程跑在托管 Notebook 里，生成调用非常重（分钟级），因此生成请求
// 不做自动重试；状态探测类接口使用独立的轻量客户端，允许重试
type Flux struct {
	conf  *config.Config
	resty *resty.Client
	probe *resty.Client
}

func New(conf *config.Config) *Flux {
	generateTimeout := time.Duration(conf.FluxTimeout) * time.Second
	if generateTimeout <= 0 {
		generateTimeout = 300 * time.Second
	}

	return &Flux{
		conf:  conf,
		resty: misc.RestyClient(0).SetTimeout(generateTimeout),
		probe: misc.RestyClient(2).SetTimeout(10 * time.Second),
	}
}

func NewWithResty(conf *config.Config, restyClient *resty.Client) *Flux {
	return &Flux{conf: conf, resty: restyClient, probe: restyClient}
}

// GenerateRequest 文生图请求，字段命名与推理服务的 API 保持一致
type GenerateRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	Guidance       float64 `json:"cfg_guidance,omitempty"`
	// Seed -1 表示随机种子，由后端解析
	Seed      int64 `json:"seed"`
	Width     int   `json:"width,omitempty"`
	Height    int   `json:"height,omitempty"`
	NumImages int   `json:"num_images,omitempty"`
}

type GenerateResponse struct {
	Success bool `json:"success"`
	// Images base64 编码的图片列表，可能带 data-URI 前缀也可能不带
	Images []string `json:"images,omitempty"`
	Image  string   `json:"image,omitempty"`
	// Seed 实际使用的随机种子
	Seed     int64   `json:"seed,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Generate 同步生成图片，调用期间独占推理后端
func (f *Flux) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	r := f.resty.R().SetContext(ctx).SetHeader("Content-Type", "application/json")
	if f.conf.FluxKey != "" {
		r.SetHeader("Authorization", "Bearer "+f.conf.FluxKey)
	}

	resp, err := r.SetBody(req).Post(f.conf.FluxServer + "/generate")
	if err != nil {
		return nil, errors.Wrap(err, "request inference server failed")
	}

	if resp.IsError() {
		return nil, errors.Errorf("generate failed [%d]: %s", resp.StatusCode(), misc.SubString(string(resp.Body()), 500))
	}

	var ret GenerateResponse
	if err := json.Unmarshal(resp.Body(), &ret); err != nil {
		return nil, errors.Wrap(err, "decode generate response failed")
	}

	if !ret.Success {
		return nil, errors.New(ret.Error)
	}

	if len(ret.Images) == 0 && ret.Image != "" {
		ret.Images = []string{ret.Image}
	}

	if len(ret.Images) == 0 {
		return nil, errors.New("inference server returned no images")
	}

	for i, img := range ret.Images {
		if !misc.IsDataURI(img) {
			ret.Images[i] = misc.AddImageBase64Prefix(img, "image/png")
		}
	}

	return &ret, nil
}

// Status 推理后端的详细状态（模型加载进度、设备信息等）
type Status struct {
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	ModelLoaded bool   `json:"model_loaded"`
	Device      string `json:"device,omitempty"`
}

func (f *Flux) Status(ctx context.Context) (*Status, error) {
	resp, err := f.probe.R().SetContext(ctx).Get(f.conf.FluxServer + "/status")
	if err != nil {
		return nil, errors.Wrap(err, "request inference server failed")
	}

	if resp.IsError() {
		return nil, errors.Errorf("query status failed [%d]: %s", resp.StatusCode(), string(resp.Body()))
	}

	var ret Status
	if err := json.Unmarshal(resp.Body(), &ret); err != nil {
		return nil, errors.Wrap(err, "decode status response failed")
	}

	return &ret, nil
}

// Ready 模型是否已经加载完成，探测失败视为未就绪
func (f *Flux) Ready(ctx context.Context) bool {
	status, err := f.Status(ctx)
	if err != nil {
		log.Warningf("probe inference server failed: %v", err)
		return false
	}

	return status.ModelLoaded
}

// Health 推理后端健康信息，GPU 字段原样透传
type Health struct {
	Status      string                 `json:"status"`
	Device      string                 `json:"device,omitempty"`
	ModelLoaded bool                   `json:"model_loaded"`
	GPU         map[string]interface{} `json:"gpu,omitempty"`
}

func (f *Flux) Health(ctx context.Context) (*Health, error) {
	resp, err := f.probe.R().SetContext(ctx).Get(f.conf.FluxServer + "/health")
	if err != nil {
		return nil, errors.Wrap(err, "request inference server failed")
	}

	if resp.IsError() {
		return nil, errors.Errorf("query health failed [%d]: %s", resp.StatusCode(), string(resp.Body()))
	}

	var ret Health
	if err := json.Unmarshal(resp.Body(), &ret); err != nil {
		return nil, errors.Wrap(err, "decode health response failed")
	}

	return &ret, nil
}

// Model 推理后端暴露的模型信息
type Model struct {
	ID                  string                 `json:"id"`
	Name                string                 `json:"name"`
	Status              string                 `json:"status"`
	TextEncoders        map[string]interface{} `json:"text_encoders,omitempty"`
	RecommendedSettings map[string]string      `json:"recommended_settings,omitempty"`
}

func (f *Flux) Models(ctx context.Context) ([]Model, error) {
	resp, err := f.probe.R().SetContext(ctx).Get(f.conf.FluxServer + "/models")
	if err != nil {
		return nil, errors.Wrap(err, "request inference server failed")
	}

	if resp.IsError() {
		return nil, errors.Errorf("query models failed [%d]: %s", resp.StatusCode(), string(resp.Body()))
	}

	var ret struct {
		Models []Model `json:"models"`
	}
	if err := json.Unmarshal(resp.Body(), &ret); err != nil {
		return nil, errors.Wrap(err, "decode models response failed")
	}

	return ret.Models, nil
}

// ReclaimMemory 通知推理后端回收显存，尽力而为，后端不支持该接口时静默忽略
func (f *Flux) ReclaimMemory(ctx context.Context) {
	resp, err := f.probe.R().SetContext(ctx).Post(f.conf.FluxServer + "/memory/release")
	if err != nil {
		log.Debugf("reclaim inference server memory failed: %v", err)
		return
	}

	if resp.IsError() && resp.StatusCode() != 404 {
		log.Debugf("reclaim inference server memory failed [%d]: %s", resp.StatusCode(), string(resp.Body()))
	}
}
