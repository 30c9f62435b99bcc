package ruleconflict

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"nfpanel/nfp/model"
)

// FetchFunc 拉取当前启用规则的全量列表
type FetchFunc func(ctx context.Context) ([]model.Rule, error)

// Cache 启用规则的整体替换缓存：刷新要么全量落位要么不动，
// 永不部分合并。并发刷新经 singleflight 合并；迟到的旧刷新
// 不允许覆盖更新的数据（last-write-wins）。
type Cache struct {
	fetch FetchFunc

	mu        sync.RWMutex
	rules     []model.Rule
	byID      map[int64]model.Rule
	installed uint64

	seq atomic.Uint64
	sf  singleflight.Group
}

func NewCache(fetch FetchFunc) *Cache {
	return &Cache{
		fetch: fetch,
		byID:  make(map[int64]model.Rule),
	}
}

// Refresh 拉取并整体替换；失败时保留旧数据
func (c *Cache) Refresh(ctx context.Context) ([]model.Rule, error) {
	v, err, _ := c.sf.Do("rules", func() (any, error) {
		gen := c.seq.Add(1)
		rules, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.install(gen, rules)
		return rules, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Rule), nil
}

// install 只有比已落位数据更新的刷新才生效
func (c *Cache) install(gen uint64, rules []model.Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen <= c.installed {
		return
	}
	c.installed = gen
	c.rules = rules
	c.byID = make(map[int64]model.Rule, len(rules))
	for _, r := range rules {
		c.byID[r.ID] = r
	}
}

func (c *Cache) Snapshot() []model.Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

func (c *Cache) Get(id int64) (model.Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.byID[id]
	return r, ok
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}
