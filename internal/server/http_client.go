package server

import (
	"net"
	"net/http"
	"time"

	"github.com/media-relay/media-relay/internal/config"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewUpstreamClient 返回共享 http.Client，用于解析服务与源站请求。
// 各阶段的超时由调用方通过 context 控制，这里只设置一个覆盖最长下载的兜底值。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	timeout := 2 * time.Minute
	if cfg != nil {
		if fetch := cfg.Global.UpstreamTimeout.DurationValue(); fetch > 0 {
			timeout = fetch
		}
		if resolve := cfg.Resolver.Timeout.DurationValue(); resolve > timeout {
			timeout = resolve
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
	}
}
