package formstate

import (
	"sync"
	"sync/atomic"

	"nfpanel/nfp/core/ruleconflict"
	"nfpanel/nfp/model"
)

// Session 一次表单交互的全部可变状态。随表单创建、
// 随取消/提交成功销毁，绝不跨表单共享。
type Session struct {
	mu sync.Mutex

	Entity model.ProxyConfig
	Items  *ItemList
	Rules  *ruleconflict.Selection

	submitting atomic.Bool
}

func NewSession(kind model.Kind) *Session {
	return &Session{
		Entity: model.ProxyConfig{Kind: kind},
		Items:  NewItemList(kind),
		Rules:  ruleconflict.NewSelection(),
	}
}

// With 串行化对会话状态的读写
func (s *Session) With(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// BeginSubmit 提交闸：同一表单不允许并发提交。
// 返回 false 表示已有一次提交在途。
func (s *Session) BeginSubmit() bool {
	return s.submitting.CompareAndSwap(false, true)
}

// EndSubmit 无论成败都必须恢复，通常 defer 调用
func (s *Session) EndSubmit() {
	s.submitting.Store(false)
}

func (s *Session) Submitting() bool { return s.submitting.Load() }

// Hydrate 用已有配置填充会话：行按存储顺序重建，
// 规则引用经 lookup 还原类别（缓存里查不到的引用丢弃）
func (s *Session) Hydrate(cfg *model.ProxyConfig, lookup func(id int64) (model.RuleCategory, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Entity = *cfg
	s.Items = NewItemList(cfg.Kind)
	s.Items.Hydrate(cfg)

	s.Rules = ruleconflict.NewSelection()
	if lookup == nil {
		return
	}
	for _, id := range cfg.IPRuleIDs {
		if cat, ok := lookup(id); ok {
			_ = s.Rules.Add(id, cat)
		}
	}
}
