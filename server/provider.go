package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/gorilla/mux"
	"github.com/mylxsw/asteria/log"
	"github.com/mylxsw/glacier/infra"
	"github.com/mylxsw/glacier/listener"
	"github.com/mylxsw/glacier/web"
	"github.com/mylxsw/go-utils/str"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mylxsw/krea-server/config"
	"github.com/mylxsw/krea-server/pkg/metrics"
	"github.com/mylxsw/krea-server/pkg/rate"
	"github.com/mylxsw/krea-server/server/controllers"
	"github.com/mylxsw/krea-server/server/controllers/common"
)

type Provider struct{}

// Aggregates 实现 infra.ProviderAggregate 接口
func (Provider) Aggregates() []infra.Provider {
	return []infra.Provider{
		web.Provider(
			listener.FlagContext("listen"),
			web.SetRouteHandlerOption(routes),
			web.SetMuxRouteHandlerOption(muxRoutes),
			web.SetExceptionHandlerOption(exceptionHandler),
			web.SetIgnoreLastSlashOption(true),
		),
	}
}

// Register 实现 infra.Provider 接口
func (Provider) Register(binder infra.Binder) {}

// exceptionHandler 异常处理器
func exceptionHandler(ctx web.Context, err interface{}) web.Response {
	log.Errorf("request %s failed: %v, stack is %s", ctx.Request().Raw().URL.Path, err, string(debug.Stack()))
	return ctx.JSONWithCode(web.M{"error": fmt.Sprintf("%v", err)}, http.StatusInternalServerError)
}

// routes 注册路由规则
func routes(resolver infra.Resolver, router web.Router, mw web.RequestMiddleware) {
	conf := resolver.MustGet((*config.Config)(nil)).(*config.Config)

	mws := make([]web.HandlerDecorator, 0)
	// 跨域请求处理
	if conf.EnableCORS {
		mws = append(mws, mw.CORS("*"))
	}

	// 需要鉴权的 URLs，服务经隧道公开暴露，除信息类接口外都要求 API Token
	needAuthPrefix := []string{
		"/v1/generate", // 图片生成
		"/v1/progress", // 进度查询
	}

	// Prometheus 监控指标
	reqCounterMetric := metrics.BuildCounterVec(
		"krea",
		"http_request_count",
		"http request counts",
		[]string{"method", "path", "code"},
	)

	mws = append(mws, mw.BeforeInterceptor(func(webCtx web.Context) web.Response {
		// 跨域请求处理，OPTIONS 请求直接返回
		if webCtx.Method() == http.MethodOptions {
			return webCtx.JSON(web.M{})
		}

		return nil
	}))

	// 基于客户端 IP 的限流
	if conf.EnableRateLimit {
		resolver.MustResolve(func(limiter *redis_rate.Limiter) {
			mws = append(mws, mw.BeforeInterceptor(func(webCtx web.Context) web.Response {
				clientIP := webCtx.Header("X-Real-IP")
				if clientIP == "" {
					return nil
				}

				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()

				m, err := limiter.Allow(ctx, fmt.Sprintf("request-ip:%s:freq", clientIP), rate.MaxRequestsInPeriod(30, 10*time.Second))
				if err != nil {
					return webCtx.JSONError("rate-limiter: internal server error", http.StatusInternalServerError)
				}

				if m.Remaining <= 0 {
					log.WithFields(log.Fields{"ip": clientIP}).Warningf("client request too frequently")
					return webCtx.JSONError(common.ErrRateLimitExceeded, http.StatusTooManyRequests)
				}

				return nil
			}))
		})
	}

	// API Token 鉴权
	if conf.APIToken != "" {
		mws = append(mws, mw.BeforeInterceptor(func(webCtx web.Context) web.Response {
			if !str.HasPrefixes(webCtx.Request().Raw().URL.Path, needAuthPrefix) {
				return nil
			}

			authHeader := webCtx.Header("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") || strings.TrimPrefix(authHeader, "Bearer ") != conf.APIToken {
				return webCtx.JSONError("auth failed: invalid api token", http.StatusUnauthorized)
			}

			return nil
		}))
	}

	mws = append(mws, mw.CustomAccessLog(func(cal web.CustomAccessLog) {
		// 记录访问日志
		path, _ := cal.Context.CurrentRoute().GetPathTemplate()
		reqCounterMetric.WithLabelValues(
			cal.Method,
			path,
			strconv.Itoa(cal.ResponseCode),
		).Inc()

		log.F(log.M{
			"method": cal.Method,
			"url":    cal.URL,
			"code":   cal.ResponseCode,
			"elapse": cal.Elapse.Milliseconds(),
			"ip":     cal.Context.Header("X-Real-IP"),
		}).Debug("request")
	}))

	// 注册控制器
	r := router.WithMiddleware(mws...)
	r.Controllers(
		"/v1",
		controllers.NewGenerateController(resolver, conf),
		controllers.NewTaskController(resolver),
		controllers.NewModelController(resolver),
	)

	// 公开访问信息
	r.Controllers(
		"/public",
		controllers.NewInfoController(conf),
	)
}

func muxRoutes(resolver infra.Resolver, router *mux.Router) {
	resolver.MustResolve(func(conf *config.Config) {
		// 添加 prometheus metrics 支持
		router.PathPrefix("/metrics").Handler(PrometheusHandler{token: conf.PrometheusToken})
		// 添加健康检查接口支持
		router.PathPrefix("/health").Handler(HealthCheck{})
	})
}

type PrometheusHandler struct {
	token string
}

func (h PrometheusHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	authHeader := request.Header.Get("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		writer.WriteHeader(http.StatusUnauthorized)
		return
	}

	tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
	if h.token != "" && tokenStr != h.token {
		writer.WriteHeader(http.StatusUnauthorized)
		return
	}

	promhttp.Handler().ServeHTTP(writer, request)
}

type HealthCheck struct{}

func (h HealthCheck) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Add("Content-Type", "application/json")
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write([]byte(`{"status": "UP"}`))
}
