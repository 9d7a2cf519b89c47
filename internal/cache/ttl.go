package cache

import (
	"sync"
	"time"
)

// Outcome 是一次计算的结果：成功值或被记录下来的失败，二者只会有一个有意义。
type Outcome[V any] struct {
	Value V
	Err   error
}

// Failed 表示该条目记录的是失败，调用方应重新抛出 Err 而不是把它当作数据。
func (o Outcome[V]) Failed() bool {
	return o.Err != nil
}

type ttlEntry[V any] struct {
	storedAt time.Time
	outcome  Outcome[V]
}

// TTL 是按写入时间过期的键值缓存。过期只在读取时判断，过期条目留在 map 中，
// 直到被覆盖、Delete 或显式 Purge。
type TTL[K comparable, V any] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[K]ttlEntry[V]
}

// NewTTL 以 ttl 构建缓存，默认使用 time.Now 作为时钟。
func NewTTL[K comparable, V any](ttl time.Duration) *TTL[K, V] {
	return &TTL[K, V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[K]ttlEntry[V]),
	}
}

// TTL 返回条目的存活时长。
func (c *TTL[K, V]) TTL() time.Duration {
	return c.ttl
}

// Get 返回未过期的条目。ok 为 false 时表示不存在或已过期。
func (c *TTL[K, V]) Get(key K) (Outcome[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || c.expired(entry, c.now()) {
		return Outcome[V]{}, false
	}
	return entry.outcome, true
}

// Set 记录成功值。
func (c *TTL[K, V]) Set(key K, value V) {
	c.put(key, Outcome[V]{Value: value})
}

// SetErr 记录失败（负缓存），在过期前会被原样重放。
func (c *TTL[K, V]) SetErr(key K, err error) {
	c.put(key, Outcome[V]{Err: err})
}

func (c *TTL[K, V]) put(key K, outcome Outcome[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ttlEntry[V]{storedAt: c.now(), outcome: outcome}
}

// Delete 删除条目，不存在时为空操作。
func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Keys 返回所有未过期的键，顺序不固定。
func (c *TTL[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	keys := make([]K, 0, len(c.entries))
	for key, entry := range c.entries {
		if c.expired(entry, now) {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// Values 返回所有未过期的结果。
func (c *TTL[K, V]) Values() []Outcome[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	values := make([]Outcome[V], 0, len(c.entries))
	for _, entry := range c.entries {
		if c.expired(entry, now) {
			continue
		}
		values = append(values, entry.outcome)
	}
	return values
}

// Items 返回未过期条目的快照。
func (c *TTL[K, V]) Items() map[K]Outcome[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	items := make(map[K]Outcome[V], len(c.entries))
	for key, entry := range c.entries {
		if c.expired(entry, now) {
			continue
		}
		items[key] = entry.outcome
	}
	return items
}

// Len 返回未过期条目数。
func (c *TTL[K, V]) Len() int {
	return len(c.Keys())
}

// Purge 删除所有已过期条目并返回删除数量，只在调用方显式触发时执行。
func (c *TTL[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if c.expired(entry, now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *TTL[K, V]) expired(entry ttlEntry[V], now time.Time) bool {
	return now.Sub(entry.storedAt) > c.ttl
}
