package model

import (
	"fmt"
	"strings"
)

// Kind 转发配置的协议类型；零值非法，必须经 ParseKind 得到
type Kind string

const (
	KindHTTP Kind = "http"
	KindTCP  Kind = "tcp"
	KindUDP  Kind = "udp"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindHTTP:
		return KindHTTP, nil
	case KindTCP:
		return KindTCP, nil
	case KindUDP:
		return KindUDP, nil
	default:
		return "", fmt.Errorf("unknown proxy kind %q", s)
	}
}

// SupportsPaths 只有 http 类配置有路径/Host 语义
func (k Kind) SupportsPaths() bool { return k == KindHTTP }

func (k Kind) Valid() bool {
	return k == KindHTTP || k == KindTCP || k == KindUDP
}

// Backend 一条上游条目；Weight 最小为 1
type Backend struct {
	Address    string `json:"address"`
	Port       int    `json:"port"`
	Weight     int    `json:"weight"`
	TargetPath string `json:"target_path,omitempty"`
}

// LocationPath 转发路径映射（仅 http）
type LocationPath struct {
	MatchPath  string `json:"match_path"`
	TargetPath string `json:"target_path"`
}

// Timeouts 秒；0 表示未填，组装时落到默认 60
type Timeouts struct {
	Connect int `json:"proxy_connect_timeout"`
	Send    int `json:"proxy_send_timeout"`
	Read    int `json:"proxy_read_timeout"`
}

// ProxyConfig 设备侧的一条转发配置（读取形态，已归一化）
type ProxyConfig struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	Kind          Kind           `json:"kind"`
	ListenPort    int            `json:"listen_port"`
	ServerName    string         `json:"server_name,omitempty"`
	Backends      []Backend      `json:"backends"`
	LocationPaths []LocationPath `json:"location_paths,omitempty"`
	BackendPath   string         `json:"backend_path,omitempty"`
	Timeouts
	IPRuleIDs     []int64        `json:"ip_rule_ids,omitempty"`
	Enabled       bool           `json:"enabled"`
}
