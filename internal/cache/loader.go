package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/indexfs/indexfs/internal/metrics"
)

// LoadFunc 在缓存未命中时计算 key 对应的值。
type LoadFunc[V any] func(ctx context.Context, key string) (V, error)

// LoaderOptions 控制 Loader 的行为。
type LoaderOptions struct {
	// Name 用于指标标签，例如 "list"、"attr"。
	Name string
	TTL  time.Duration
	// Coalesce 为 true 时同一 key 的并发未命中只计算一次，其余调用等待同一结果。
	Coalesce bool
}

// Loader 把 TTL 缓存与加载函数组合成 “Empty → Computing → Cached-Success/Cached-Failure”
// 状态机。计算在缓存锁之外进行；失败同样被缓存，并在过期前原样返回。
type Loader[V any] struct {
	name     string
	entries  *TTL[string, V]
	load     LoadFunc[V]
	coalesce bool
	group    singleflight.Group
}

// NewLoader 构建带负缓存的加载器。
func NewLoader[V any](opts LoaderOptions, load func(ctx context.Context, key string) (V, error)) *Loader[V] {
	return &Loader[V]{
		name:     opts.Name,
		entries:  NewTTL[string, V](opts.TTL),
		load:     load,
		coalesce: opts.Coalesce,
	}
}

// Get 先查缓存，命中失败条目时直接返回记录的 error；未命中时调用加载函数并写回结果。
func (l *Loader[V]) Get(ctx context.Context, key string) (V, error) {
	if outcome, ok := l.entries.Get(key); ok {
		if outcome.Failed() {
			metrics.RecordCacheLookup(l.name, metrics.LookupNegative)
		} else {
			metrics.RecordCacheLookup(l.name, metrics.LookupHit)
		}
		return outcome.Value, outcome.Err
	}
	metrics.RecordCacheLookup(l.name, metrics.LookupMiss)

	if !l.coalesce {
		return l.fill(ctx, key)
	}

	// 共享的加载脱离发起者的取消信号；每个调用方只按自己的 ctx 放弃等待。
	shared := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (interface{}, error) {
		// 等待期间可能已有其他调用写入结果。
		if outcome, ok := l.entries.Get(key); ok {
			return outcome.Value, outcome.Err
		}
		return l.fill(shared, key)
	})

	select {
	case res := <-ch:
		value, _ := res.Val.(V)
		return value, res.Err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (l *Loader[V]) fill(ctx context.Context, key string) (V, error) {
	value, err := l.load(ctx, key)
	if err != nil {
		// 调用方自身取消的请求不代表远端状态，不写入负缓存。
		if ctx.Err() == nil {
			l.entries.SetErr(key, err)
		}
		return value, err
	}
	l.entries.Set(key, value)
	return value, nil
}

// Forget 丢弃 key 的缓存结果，下次访问会重新加载。
func (l *Loader[V]) Forget(key string) {
	l.entries.Delete(key)
}

// Entries 暴露底层 TTL 缓存，便于统计与诊断。
func (l *Loader[V]) Entries() *TTL[string, V] {
	return l.entries
}
