// Package formstate 表单会话里的行状态：动态后端行列表、
// 行间共享字段同步、以及路径一致性检查。
package formstate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"nfpanel/nfp/model"
)

// ErrMinimumRows 列表必须至少保留一行
var ErrMinimumRows = errors.New("at least one backend row is required")

// Row 一条可编辑的后端行。MatchPath 是“每行都能填、实际只存一份”的
// 旧 schema 字段，靠 SyncSharedField 保持各行一致。
type Row struct {
	Address    string
	Port       int
	Weight     int
	TargetPath string
	MatchPath  string
}

func (r Row) Complete() bool {
	return strings.TrimSpace(r.Address) != "" && r.Port > 0
}

func emptyRow() Row { return Row{Weight: 1} }

// ItemList 有序行集合；index 0 为主行
type ItemList struct {
	kind model.Kind
	rows []Row
}

func NewItemList(kind model.Kind) *ItemList {
	return &ItemList{kind: kind, rows: []Row{emptyRow()}}
}

func (l *ItemList) Kind() model.Kind { return l.kind }
func (l *ItemList) Len() int         { return len(l.rows) }

// PathVisible 该类配置是否展示路径/Host 字段
func (l *ItemList) PathVisible() bool { return l.kind.SupportsPaths() }

func (l *ItemList) Row(i int) (*Row, error) {
	if i < 0 || i >= len(l.rows) {
		return nil, fmt.Errorf("row index %d out of range [0,%d)", i, len(l.rows))
	}
	return &l.rows[i], nil
}

func (l *ItemList) Rows() []Row {
	out := make([]Row, len(l.rows))
	copy(out, l.rows)
	return out
}

func (l *ItemList) AddRow() *Row {
	l.rows = append(l.rows, emptyRow())
	return &l.rows[len(l.rows)-1]
}

// RemoveRow 至少保留一行；删除失败时列表不变
func (l *ItemList) RemoveRow(i int) error {
	if i < 0 || i >= len(l.rows) {
		return fmt.Errorf("row index %d out of range [0,%d)", i, len(l.rows))
	}
	if len(l.rows) == 1 {
		return ErrMinimumRows
	}
	l.rows = append(l.rows[:i], l.rows[i+1:]...)
	return nil
}

// SyncSharedField 主行的 MatchPath 变化后调用：非空则逐字拷贝到
// 所有展示该字段的行；为空则清掉所有行，绝不留旧值。
func (l *ItemList) SyncSharedField() {
	if !l.PathVisible() || len(l.rows) == 0 {
		return
	}
	primary := l.rows[0].MatchPath
	for i := range l.rows {
		l.rows[i].MatchPath = primary
	}
}

// Consistency 路径一致性检查结果；只提示不拦截提交
type Consistency struct {
	Consistent bool
	Distinct   []string
}

// CheckPathConsistency 比较各完整行的 TargetPath；出现一种以上
// 非空取值即视为不一致
func (l *ItemList) CheckPathConsistency() Consistency {
	seen := make(map[string]struct{})
	for _, r := range l.rows {
		if !r.Complete() {
			continue
		}
		p := strings.TrimSpace(r.TargetPath)
		if p == "" {
			continue
		}
		seen[p] = struct{}{}
	}
	if len(seen) <= 1 {
		return Consistency{Consistent: true}
	}
	distinct := make([]string, 0, len(seen))
	for p := range seen {
		distinct = append(distinct, p)
	}
	sort.Strings(distinct)
	return Consistency{Consistent: false, Distinct: distinct}
}

// Hydrate 从已存在的配置重建行：按存储顺序映射后端；
// 没有任何后端时回到单个空行
func (l *ItemList) Hydrate(cfg *model.ProxyConfig) {
	if len(cfg.Backends) == 0 {
		l.rows = []Row{emptyRow()}
	} else {
		l.rows = make([]Row, 0, len(cfg.Backends))
		for _, b := range cfg.Backends {
			w := b.Weight
			if w < 1 {
				w = 1
			}
			l.rows = append(l.rows, Row{
				Address:    b.Address,
				Port:       b.Port,
				Weight:     w,
				TargetPath: b.TargetPath,
			})
		}
	}
	if l.PathVisible() && len(cfg.LocationPaths) > 0 {
		l.rows[0].MatchPath = cfg.LocationPaths[0].MatchPath
		l.SyncSharedField()
	}
}
