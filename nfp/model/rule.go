package model

import (
	"fmt"
	"strings"

	"nfpanel/nfp/common/ttime"
)

// RuleCategory 访问规则的类别；白/黑名单同族互斥
type RuleCategory string

const (
	CatIPWhitelist  RuleCategory = "ip_whitelist"
	CatIPBlacklist  RuleCategory = "ip_blacklist"
	CatGeoWhitelist RuleCategory = "geo_whitelist"
	CatGeoBlacklist RuleCategory = "geo_blacklist"
)

func ParseRuleCategory(s string) (RuleCategory, error) {
	switch RuleCategory(strings.ToLower(strings.TrimSpace(s))) {
	case CatIPWhitelist:
		return CatIPWhitelist, nil
	case CatIPBlacklist:
		return CatIPBlacklist, nil
	case CatGeoWhitelist:
		return CatGeoWhitelist, nil
	case CatGeoBlacklist:
		return CatGeoBlacklist, nil
	default:
		return "", fmt.Errorf("unknown rule category %q", s)
	}
}

func (c RuleCategory) Valid() bool {
	switch c {
	case CatIPWhitelist, CatIPBlacklist, CatGeoWhitelist, CatGeoBlacklist:
		return true
	}
	return false
}

// Opposite 同族的对立类别；无对立返回空串
func (c RuleCategory) Opposite() RuleCategory {
	switch c {
	case CatIPWhitelist:
		return CatIPBlacklist
	case CatIPBlacklist:
		return CatIPWhitelist
	case CatGeoWhitelist:
		return CatGeoBlacklist
	case CatGeoBlacklist:
		return CatGeoWhitelist
	}
	return ""
}

var ruleCategoryLabels = map[RuleCategory]string{
	CatIPWhitelist:  "IP白名单",
	CatIPBlacklist:  "IP黑名单",
	CatGeoWhitelist: "地区白名单",
	CatGeoBlacklist: "地区黑名单",
}

func (c RuleCategory) Label() string {
	if s, ok := ruleCategoryLabels[c]; ok {
		return s
	}
	return string(c)
}

// Rule 设备侧的一条访问规则
type Rule struct {
	ID       int64             `json:"id"`
	Name     string            `json:"name"`
	Category RuleCategory      `json:"category"`
	Entries  []string          `json:"entries,omitempty"` // IP/CIDR 或地区码
	Enabled  bool              `json:"enabled"`
	ExpireAt *ttime.TimeFormat `json:"expire_at,omitempty"` // 空 => 永久
}
