// Package ruleconflict 访问规则的互斥约束：同族白/黑名单不能同时
// 挂到一条配置上，规则 id 也不允许重复引用。
package ruleconflict

import (
	"errors"
	"fmt"

	"nfpanel/nfp/model"
)

// ErrDuplicateRule 同一规则在实体内只允许引用一次
var ErrDuplicateRule = errors.New("rule already referenced")

// ConflictError 候选类别与已选类别互斥；消息里带双方标签
type ConflictError struct {
	Candidate model.RuleCategory
	Existing  model.RuleCategory
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s 与 %s 互斥，不能同时选择", e.Candidate.Label(), e.Existing.Label())
}

// Conflicts 静态邻接：ip_whitelist ↔ ip_blacklist，geo_whitelist ↔ geo_blacklist；
// ip 族与 geo 族之间无边
func Conflicts(a, b model.RuleCategory) bool {
	return a.Opposite() == b
}

// CheckConflict 已选类别中是否存在与候选互斥的
func CheckConflict(candidate model.RuleCategory, selected []model.RuleCategory) bool {
	for _, s := range selected {
		if Conflicts(candidate, s) {
			return true
		}
	}
	return false
}

// Ref 实体到规则的一条引用
type Ref struct {
	RuleID   int64              `json:"rule_id"`
	Category model.RuleCategory `json:"category"`
}

// Selection 一个表单会话内的规则引用集合；Add 失败时集合不变
type Selection struct {
	refs []Ref
}

func NewSelection() *Selection { return &Selection{} }

func (s *Selection) Len() int { return len(s.refs) }

func (s *Selection) Refs() []Ref {
	out := make([]Ref, len(s.refs))
	copy(out, s.refs)
	return out
}

func (s *Selection) Categories() []model.RuleCategory {
	out := make([]model.RuleCategory, 0, len(s.refs))
	for _, r := range s.refs {
		out = append(out, r.Category)
	}
	return out
}

func (s *Selection) IDs() []int64 {
	out := make([]int64, 0, len(s.refs))
	for _, r := range s.refs {
		out = append(out, r.RuleID)
	}
	return out
}

func (s *Selection) Contains(ruleID int64) bool {
	for _, r := range s.refs {
		if r.RuleID == ruleID {
			return true
		}
	}
	return false
}

// Add 冲突立即拒绝而不是事后标记；调用方拿到错误后选择状态回到原样
func (s *Selection) Add(ruleID int64, cat model.RuleCategory) error {
	if !cat.Valid() {
		return fmt.Errorf("invalid rule category %q", cat)
	}
	if s.Contains(ruleID) {
		return fmt.Errorf("%w: id=%d", ErrDuplicateRule, ruleID)
	}
	for _, r := range s.refs {
		if Conflicts(cat, r.Category) {
			return &ConflictError{Candidate: cat, Existing: r.Category}
		}
	}
	s.refs = append(s.refs, Ref{RuleID: ruleID, Category: cat})
	return nil
}

func (s *Selection) Remove(ruleID int64) bool {
	for i, r := range s.refs {
		if r.RuleID == ruleID {
			s.refs = append(s.refs[:i], s.refs[i+1:]...)
			return true
		}
	}
	return false
}

// Available 每次增删后重算：启用中、类别不与当前选择互斥、
// 且尚未被本实体引用的规则才可供选择
func (s *Selection) Available(all []model.Rule) []model.Rule {
	selected := s.Categories()
	out := make([]model.Rule, 0, len(all))
	for _, r := range all {
		if !r.Enabled {
			continue
		}
		if s.Contains(r.ID) {
			continue
		}
		if CheckConflict(r.Category, selected) {
			continue
		}
		out = append(out, r)
	}
	return out
}
