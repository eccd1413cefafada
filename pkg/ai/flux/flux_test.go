package flux_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/resty.v1"

	"github.com/mylxsw/krea-server/config"
	"github.com/mylxsw/krea-server/pkg/ai/flux"
)

func newTestClient(serverURL string) *flux.Flux {
	conf := &config.Config{FluxServer: serverURL, FluxKey: "test-key"}
	return flux.NewWithResty(conf, resty.New())
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generate", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a red fox", req["prompt"])
		assert.EqualValues(t, 30, req["steps"])
		assert.EqualValues(t, 4.0, req["cfg_guidance"])
		assert.EqualValues(t, -1, req["seed"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success":  true,
			"image":    "aGVsbG8=",
			"seed":     12345,
			"duration": 3.2,
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	ret, err := client.Generate(context.Background(), flux.GenerateRequest{
		Prompt:   "a red fox",
		Steps:    30,
		Guidance: 4.0,
		Seed:     -1,
	})
	assert.NoError(t, err)

	// 单图字段归一化为图片列表，裸 base64 补全 data-URI 前缀
	assert.Equal(t, 1, len(ret.Images))
	assert.Equal(t, "data:image/png;base64,aGVsbG8=", ret.Images[0])
	assert.EqualValues(t, 12345, ret.Seed)
}

func TestGenerateKeepsDataURI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"images":  []string{"data:image/png;base64,aGVsbG8="},
		})
	}))
	defer srv.Close()

	ret, err := newTestClient(srv.URL).Generate(context.Background(), flux.GenerateRequest{Prompt: "x"})
	assert.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,aGVsbG8=", ret.Images[0])
}

func TestGenerateBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "CUDA out of memory",
		})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), flux.GenerateRequest{Prompt: "x"})
	assert.Error(t, err)
	assert.Equal(t, "CUDA out of memory", err.Error())
}

func TestGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model is still loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), flux.GenerateRequest{Prompt: "x"})
	assert.Error(t, err)
}

func TestStatusAndReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":       "ready",
			"progress":     100,
			"model_loaded": true,
			"device":       "cuda",
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	status, err := client.Status(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "ready", status.Status)
	assert.Equal(t, 100, status.Progress)
	assert.True(t, status.ModelLoaded)

	assert.True(t, client.Ready(context.Background()))
}

func TestReadyWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	assert.False(t, newTestClient(srv.URL).Ready(context.Background()))
}

func TestModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"models": []map[string]interface{}{
				{"id": "flux-krea-pro", "name": "FLUX KREA Pro with T5-XXL", "status": "loaded"},
			},
		})
	}))
	defer srv.Close()

	models, err := newTestClient(srv.URL).Models(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, len(models))
	assert.Equal(t, "flux-krea-pro", models[0].ID)
	assert.Equal(t, "loaded", models[0].Status)
}
