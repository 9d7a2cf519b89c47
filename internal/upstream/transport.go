package upstream

import (
	"net"
	"net/http"
	"time"
)

// baseTransport 集中配置超时；每个 worker 克隆一份并限制为单连接。
var baseTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          1,
	MaxIdleConnsPerHost:   1,
	MaxConnsPerHost:       1,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     false,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// newWorkerClient 返回只持有一条到 origin 连接的 http.Client。重定向由 Client.Do
// 自行处理，net/http 不得自动跟随。
func newWorkerClient(timeout time.Duration) *http.Client {
	transport := baseTransport.Clone()
	if timeout > 0 {
		transport.DialContext = (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
		transport.TLSHandshakeTimeout = timeout
		transport.ResponseHeaderTimeout = timeout
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
