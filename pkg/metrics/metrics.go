package metrics

import (
	"fmt"
	"sync"

	"github.com/mylxsw/asteria/log"
	"github.com/prometheus/client_golang/prometheus"
)

var counterVecs = make(map[string]*prometheus.CounterVec)
var lock sync.Mutex

// BuildCounterVec 创建并注册一个 Prometheus 计数器，重复创建时返回已有实例
func BuildCounterVec(namespace, name, help string, tags []string) *prometheus.CounterVec {
	lock.Lock()
	defer lock.Unlock()

	cacheKey := fmt.Sprintf("%s:%s:%s", namespace, name, help)
	if sv, ok := counterVecs[cacheKey]; ok {
		return sv
	}
	// prometheus metric
	counterVec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, tags)

	if err := prometheus.Register(counterVec); err != nil {
		log.Errorf("register prometheus metric failed: %v", err)
	}

	counterVecs[cacheKey] = counterVec

	return counterVec
}
