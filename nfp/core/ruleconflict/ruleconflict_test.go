package ruleconflict

import (
	"errors"
	"reflect"
	"testing"

	"nfpanel/nfp/model"
)

func TestCheckConflict(t *testing.T) {
	tests := []struct {
		name      string
		candidate model.RuleCategory
		selected  []model.RuleCategory
		want      bool
	}{
		{"ip white vs ip black", model.CatIPWhitelist, []model.RuleCategory{model.CatIPBlacklist}, true},
		{"ip black vs ip white", model.CatIPBlacklist, []model.RuleCategory{model.CatIPWhitelist}, true},
		{"geo white vs geo black", model.CatGeoWhitelist, []model.RuleCategory{model.CatGeoBlacklist}, true},
		{"no cross family edge", model.CatIPWhitelist, []model.RuleCategory{model.CatGeoBlacklist}, false},
		{"same category not adjacent", model.CatIPWhitelist, []model.RuleCategory{model.CatIPWhitelist}, false},
		{"empty selection", model.CatIPWhitelist, nil, false},
		{
			"one adjacent among many",
			model.CatGeoBlacklist,
			[]model.RuleCategory{model.CatIPWhitelist, model.CatGeoWhitelist},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckConflict(tt.candidate, tt.selected); got != tt.want {
				t.Fatalf("CheckConflict(%s, %v) = %v, want %v", tt.candidate, tt.selected, got, tt.want)
			}
		})
	}
}

func TestSelectionAdd(t *testing.T) {
	s := NewSelection()
	if err := s.Add(1, model.CatGeoWhitelist); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// 互斥类别被立即拒绝，集合保持原样
	err := s.Add(2, model.CatGeoBlacklist)
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *ConflictError", err)
	}
	if ce.Candidate != model.CatGeoBlacklist || ce.Existing != model.CatGeoWhitelist {
		t.Fatalf("conflict pair = %s/%s", ce.Candidate, ce.Existing)
	}
	if got := s.IDs(); !reflect.DeepEqual(got, []int64{1}) {
		t.Fatalf("selection changed by rejected add: %v", got)
	}

	// 跨族不互斥
	if err := s.Add(3, model.CatIPBlacklist); err != nil {
		t.Fatalf("cross-family add: %v", err)
	}

	// 重复 id 拒绝
	if err := s.Add(1, model.CatGeoWhitelist); !errors.Is(err, ErrDuplicateRule) {
		t.Fatalf("duplicate add: err = %v, want ErrDuplicateRule", err)
	}
}

func TestSelectionRemove(t *testing.T) {
	s := NewSelection()
	_ = s.Add(1, model.CatIPWhitelist)
	_ = s.Add(2, model.CatGeoWhitelist)

	if !s.Remove(1) {
		t.Fatal("Remove(1) should succeed")
	}
	if s.Remove(1) {
		t.Fatal("Remove(1) twice should fail")
	}
	// 移除后对立类别重新可选
	if err := s.Add(5, model.CatIPBlacklist); err != nil {
		t.Fatalf("add after remove: %v", err)
	}
}

func TestSelectionAvailable(t *testing.T) {
	all := []model.Rule{
		{ID: 1, Category: model.CatIPWhitelist, Enabled: true},
		{ID: 2, Category: model.CatIPBlacklist, Enabled: true},
		{ID: 3, Category: model.CatGeoWhitelist, Enabled: true},
		{ID: 4, Category: model.CatGeoWhitelist, Enabled: false},
		{ID: 5, Category: model.CatGeoBlacklist, Enabled: true},
	}

	s := NewSelection()
	_ = s.Add(1, model.CatIPWhitelist)
	_ = s.Add(3, model.CatGeoWhitelist)

	got := s.Available(all)
	// id=1/3 已引用，id=2 与 ip_whitelist 互斥，id=4 未启用，id=5 与 geo_whitelist 互斥
	if len(got) != 0 {
		t.Fatalf("Available = %v, want empty", got)
	}

	s.Remove(3)
	got = s.Available(all)
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 5 {
		t.Fatalf("Available after remove = %v, want rules 3 and 5", got)
	}
}
