package formstate

import (
	"testing"

	"nfpanel/nfp/model"
)

func TestSessionSubmitLatch(t *testing.T) {
	s := NewSession(model.KindHTTP)

	if !s.BeginSubmit() {
		t.Fatal("first BeginSubmit should succeed")
	}
	if s.BeginSubmit() {
		t.Fatal("second BeginSubmit must be rejected while in flight")
	}
	s.EndSubmit()
	if !s.BeginSubmit() {
		t.Fatal("BeginSubmit should succeed again after EndSubmit")
	}
	s.EndSubmit()
}

func TestSessionHydrate(t *testing.T) {
	cats := map[int64]model.RuleCategory{
		11: model.CatIPWhitelist,
		12: model.CatGeoBlacklist,
	}
	lookup := func(id int64) (model.RuleCategory, bool) {
		c, ok := cats[id]
		return c, ok
	}

	cfg := &model.ProxyConfig{
		ID:         7,
		Kind:       model.KindHTTP,
		ListenPort: 443,
		Backends:   []model.Backend{{Address: "10.0.0.1", Port: 8080}},
		IPRuleIDs:  []int64{11, 12, 99}, // 99 已不在缓存里，静默丢弃
	}

	s := NewSession(model.KindTCP)
	s.Hydrate(cfg, lookup)

	if s.Entity.ID != 7 || s.Entity.Kind != model.KindHTTP {
		t.Fatalf("entity = %+v", s.Entity)
	}
	if s.Items.Len() != 1 {
		t.Fatalf("items len = %d, want 1", s.Items.Len())
	}
	ids := s.Rules.IDs()
	if len(ids) != 2 || ids[0] != 11 || ids[1] != 12 {
		t.Fatalf("rule ids = %v, want [11 12]", ids)
	}
}
