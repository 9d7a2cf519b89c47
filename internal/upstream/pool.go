package upstream

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/indexfs/indexfs/internal/metrics"
)

// ErrPoolClosed 表示池已关闭且没有可用的空闲 worker。
var ErrPoolClosed = errors.New("upstream pool closed")

// worker 独占一条到 origin 的连接，同一时刻只服务一个调用方。
type worker struct {
	id     string
	client *http.Client
}

// Pool 按需创建 worker，最多 max 个。Acquire 取得独占使用权，Release 归还；
// 连接出错不会触发 worker 重建。
type Pool struct {
	max       int
	newClient func() *http.Client
	logger    *logrus.Logger
	idle      chan *worker
	done      chan struct{}

	mu      sync.Mutex
	created int
	closed  bool
}

// NewPool 构建 worker 池，newClient 为每个 worker 生成独立的 http.Client。
func NewPool(max int, newClient func() *http.Client, logger *logrus.Logger) *Pool {
	if max <= 0 {
		max = 1
	}
	return &Pool{
		max:       max,
		newClient: newClient,
		logger:    logger,
		idle:      make(chan *worker, max),
		done:      make(chan struct{}),
	}
}

// Acquire 优先复用空闲 worker；未达上限时同步创建新的，否则等待归还或 ctx 结束。
func (p *Pool) Acquire(ctx context.Context) (*worker, error) {
	select {
	case w := <-p.idle:
		return w, nil
	default:
	}

	w, closed := p.tryCreate()
	if w != nil {
		return w, nil
	}
	if closed {
		return nil, ErrPoolClosed
	}

	select {
	case w := <-p.idle:
		return w, nil
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) tryCreate() (*worker, bool) {
	p.mu.Lock()
	if p.closed || p.created >= p.max {
		closed := p.closed
		p.mu.Unlock()
		return nil, closed
	}
	p.created++
	count := p.created
	p.mu.Unlock()

	w := &worker{id: uuid.NewString(), client: p.newClient()}
	metrics.SetWorkers(count)
	p.logger.WithFields(logrus.Fields{
		"action": "worker_create",
		"worker": w.id,
		"count":  count,
	}).Debug("upstream worker created")
	return w, false
}

// Release 归还 worker。通道容量等于上限，不会阻塞；池关闭后直接关闭其连接。
func (p *Pool) Release(w *worker) {
	if w == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		w.client.CloseIdleConnections()
		return
	}
	p.idle <- w
}

// Size 返回已创建的 worker 数量。
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// Capacity 返回 worker 上限。
func (p *Pool) Capacity() int {
	return p.max
}

// Close 关闭所有空闲 worker 的连接，之后不再发放 worker；仍被占用的 worker 在归还时关闭。
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.done)

	for {
		select {
		case w := <-p.idle:
			w.client.CloseIdleConnections()
		default:
			return
		}
	}
}
