package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/indexfs/indexfs/internal/fserr"
	"github.com/indexfs/indexfs/internal/logging"
	"github.com/indexfs/indexfs/internal/metrics"
)

// errRedirectOutsideOrigin 与 errTooManyRedirects 作为 not-found 的底层原因保留在错误链上。
var (
	errRedirectOutsideOrigin = errors.New("redirect leaves configured origin")
	errTooManyRedirects      = errors.New("too many redirects")
)

// Options 描述访问 origin 所需的参数。
type Options struct {
	// Origin 必须以 "/" 结尾，重定向目标需以该字符串为前缀。
	Origin string
	// Timeout 作用于拨号、TLS 握手、响应头以及整个请求。
	Timeout time.Duration
	// MaxRedirects 为 0 时不限制同源重定向深度。
	MaxRedirects   int
	MaxConnections int
	UserAgent      string
	Logger         *logrus.Logger
}

// Client 把远端路径请求翻译成对 origin 的 HTTP 请求。
type Client struct {
	origin       string
	base         *url.URL
	basePath     string
	maxRedirects int
	userAgent    string
	pool         *Pool
	logger       *logrus.Logger
}

// NewClient 解析 origin 并创建 worker 池；worker 在首次请求时才建立。
func NewClient(opts Options) (*Client, error) {
	origin := opts.Origin
	if !strings.HasSuffix(origin, "/") {
		origin += "/"
	}
	base, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported origin scheme %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("origin %q has no host", opts.Origin)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	timeout := opts.Timeout
	return &Client{
		origin:       origin,
		base:         base,
		basePath:     strings.TrimSuffix(base.Path, "/"),
		maxRedirects: opts.MaxRedirects,
		userAgent:    opts.UserAgent,
		pool: NewPool(opts.MaxConnections, func() *http.Client {
			return newWorkerClient(timeout)
		}, logger),
		logger: logger,
	}, nil
}

// Origin 返回规范化后的 origin 字符串。
func (c *Client) Origin() string {
	return c.origin
}

// Pool 返回 worker 池，供诊断接口读取。
func (c *Client) Pool() *Pool {
	return c.pool
}

// Close 释放空闲连接。
func (c *Client) Close() {
	c.pool.Close()
}

// Do 请求 path 并返回实际提供内容的远端路径及响应。404 与越出 origin 的重定向返回
// not-found；DNS/连接失败返回 backend-unreachable；其余状态码原样交给调用方。
// 调用方必须关闭 resp.Body，worker 在 Body 关闭时归还。
func (c *Client) Do(ctx context.Context, method, path string, header http.Header) (string, *http.Response, error) {
	requested := path
	for hops := 0; ; hops++ {
		resp, err := c.roundTrip(ctx, method, path, header)
		if err != nil {
			return "", nil, err
		}

		switch resp.StatusCode {
		case http.StatusNotFound:
			drain(resp)
			return "", nil, fserr.New(fserr.KindNotFound, method, requested, nil)

		case http.StatusMovedPermanently, http.StatusFound:
			location := resp.Header.Get("Location")
			drain(resp)

			next, ok := c.stripOrigin(location)
			if !ok {
				c.logger.WithFields(logrus.Fields{
					"action":   "redirect_rejected",
					"path":     path,
					"location": location,
				}).Debug("redirect outside origin")
				return "", nil, fserr.New(fserr.KindNotFound, method, requested, errRedirectOutsideOrigin)
			}
			if c.maxRedirects > 0 && hops >= c.maxRedirects {
				return "", nil, fserr.New(fserr.KindNotFound, method, requested, errTooManyRedirects)
			}
			metrics.RecordRedirect()
			path = next
			continue
		}

		return path, resp, nil
	}
}

// stripOrigin 去掉 Location 的 origin 前缀，返回以 "/" 开头的未转义远端路径。
func (c *Client) stripOrigin(location string) (string, bool) {
	if location == "" || !strings.HasPrefix(location, c.origin) {
		return "", false
	}
	rest, err := url.Parse("/" + location[len(c.origin):])
	if err != nil {
		return "", false
	}
	return rest.Path, true
}

func (c *Client) roundTrip(ctx context.Context, method, path string, header http.Header) (*http.Response, error) {
	target := *c.base
	target.Path = c.basePath + path
	target.RawPath = ""
	target.RawQuery = ""
	target.Fragment = ""

	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, fserr.New(fserr.KindIO, method, path, err)
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	w, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, fserr.New(fserr.KindIO, method, path, err)
	}

	started := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		c.pool.Release(w)
		metrics.RecordUpstream(method, 0, time.Since(started))
		c.logger.WithFields(logging.UpstreamFields(method, path, w.id, 0)).
			WithError(err).Debug("upstream_failed")
		return nil, classify(method, path, err)
	}

	metrics.RecordUpstream(method, resp.StatusCode, time.Since(started))
	c.logger.WithFields(logging.UpstreamFields(method, path, w.id, resp.StatusCode)).
		Debug("upstream_request")

	resp.Body = &releasingBody{ReadCloser: resp.Body, release: func() { c.pool.Release(w) }}
	return resp, nil
}

// releasingBody 在 Body 关闭时把 worker 归还给池，保证读取正文期间连接仍被独占。
type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
