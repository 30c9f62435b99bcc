// Package assemble 把表单会话压成设备 API 能吃的提交载荷。
// 旧 schema 的单数 location_path 与复数 location_paths 并行携带，
// 字段的 null/缺省语义必须与设备侧完全对齐。
package assemble

import (
	"fmt"
	"strings"

	"golang.org/x/net/idna"

	"nfpanel/nfp/core/formstate"
	"nfpanel/nfp/model"
)

const (
	defaultTimeout = 60
	rootPath       = "/"
)

// ValidationError 本地校验失败；拦在提交之前，不会发往网络
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

type BackendOut struct {
	Address    string `json:"address"`
	Port       int    `json:"port"`
	Weight     int    `json:"weight"`
	TargetPath string `json:"target_path,omitempty"`
}

type LocationOut struct {
	MatchPath  string `json:"match_path"`
	TargetPath string `json:"target_path,omitempty"`
}

// Payload 出站提交体。指针字段区分“显式 null”与“整个字段不出现”：
//   - ServerName 永远出现，tcp/udp 强制 null
//   - LocationPath/LocationPaths/BackendPath 仅 http 出现；
//     http 无路径时复数字段为显式 null（指向 nil 切片的指针）
type Payload struct {
	Name       string     `json:"name"`
	Kind       model.Kind `json:"kind"`
	ListenPort int        `json:"listen_port"`
	ServerName *string    `json:"server_name"`

	Backends []BackendOut `json:"backends"`

	LocationPath  *string        `json:"location_path,omitempty"`
	LocationPaths *[]LocationOut `json:"location_paths,omitempty"`
	BackendPath   *string        `json:"backend_path,omitempty"`

	ConnectTimeout int `json:"proxy_connect_timeout"`
	SendTimeout    int `json:"proxy_send_timeout"`
	ReadTimeout    int `json:"proxy_read_timeout"`

	IPRuleIDs []int64 `json:"ip_rule_ids"`
}

// Build 从实体顶层字段 + 行列表 + 规则引用组装载荷。
// 地址和端口齐全的行才会被收进去，残缺行静默丢弃。
func Build(entity *model.ProxyConfig, rows []formstate.Row, ruleIDs []int64) (*Payload, error) {
	if !entity.Kind.Valid() {
		return nil, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", entity.Kind)}
	}
	if strings.TrimSpace(entity.Name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "name is required"}
	}
	if entity.ListenPort < 1 || entity.ListenPort > 65535 {
		return nil, &ValidationError{Field: "listen_port", Reason: "port must be in [1,65535]"}
	}

	backends, err := collectBackends(entity.Kind, rows)
	if err != nil {
		return nil, err
	}
	if len(backends) == 0 {
		return nil, &ValidationError{Field: "backends", Reason: "at least one backend with address and port is required"}
	}

	p := &Payload{
		Name:           strings.TrimSpace(entity.Name),
		Kind:           entity.Kind,
		ListenPort:     entity.ListenPort,
		Backends:       backends,
		ConnectTimeout: timeoutOrDefault(entity.Timeouts.Connect),
		SendTimeout:    timeoutOrDefault(entity.Timeouts.Send),
		ReadTimeout:    timeoutOrDefault(entity.Timeouts.Read),
	}

	// 每个 kind 的路径/Host 形态必须各自穷尽，不走隐式 else
	switch entity.Kind {
	case model.KindHTTP:
		if err := fillHTTP(p, entity, rows); err != nil {
			return nil, err
		}
	case model.KindTCP, model.KindUDP:
		// 四层协议没有 Host 路由，虚拟主机名强制 null，路径字段整体不出现
		p.ServerName = nil
	}

	// 空引用列表按“未挂规则”上送，即 null 而不是 []
	if len(ruleIDs) > 0 {
		p.IPRuleIDs = append([]int64(nil), ruleIDs...)
	}

	return p, nil
}

// FromSession 会话入口：锁内取快照再组装
func FromSession(s *formstate.Session) (*Payload, error) {
	var (
		entity model.ProxyConfig
		rows   []formstate.Row
		ids    []int64
	)
	s.With(func() {
		entity = s.Entity
		rows = s.Items.Rows()
		ids = s.Rules.IDs()
	})
	return Build(&entity, rows, ids)
}

func collectBackends(kind model.Kind, rows []formstate.Row) ([]BackendOut, error) {
	out := make([]BackendOut, 0, len(rows))
	for _, r := range rows {
		if !r.Complete() {
			continue
		}
		if r.Port < 1 || r.Port > 65535 {
			return nil, &ValidationError{Field: "backends", Reason: fmt.Sprintf("backend port %d out of range", r.Port)}
		}
		w := r.Weight
		if w < 1 {
			w = 1
		}
		b := BackendOut{Address: strings.TrimSpace(r.Address), Port: r.Port, Weight: w}
		if kind.SupportsPaths() {
			b.TargetPath = strings.TrimSpace(r.TargetPath)
		}
		out = append(out, b)
	}
	return out, nil
}

func fillHTTP(p *Payload, entity *model.ProxyConfig, rows []formstate.Row) error {
	// server_name 过 IDNA 归一化；空串上送 null
	if sn := strings.TrimSpace(entity.ServerName); sn != "" {
		ascii, err := idna.Lookup.ToASCII(sn)
		if err != nil {
			return &ValidationError{Field: "server_name", Reason: fmt.Sprintf("invalid host name %q", sn)}
		}
		p.ServerName = &ascii
	}

	// 收非空路径行；单数旧字段取第一条的 match_path
	locs := collectLocations(rows)
	if len(locs) > 0 {
		first := locs[0].MatchPath
		p.LocationPath = &first
		p.LocationPaths = &locs
	} else {
		// 旧设备固件只认单数字段：无路径时单数回退 "/"，复数显式置 null
		root := rootPath
		p.LocationPath = &root
		var null []LocationOut
		p.LocationPaths = &null
	}

	// 首个带目标路径的行填进旧 schema 的 backend_path
	for _, b := range p.Backends {
		if b.TargetPath != "" {
			bp := b.TargetPath
			p.BackendPath = &bp
			break
		}
	}
	return nil
}

func collectLocations(rows []formstate.Row) []LocationOut {
	// 路径只认行状态：Hydrate 之后用户改的是行，实体快照不再参与。
	// 主行清空 MatchPath 就是清空，绝不回落到回填时的旧值。
	var out []LocationOut
	seen := make(map[LocationOut]struct{})
	for _, r := range rows {
		if !r.Complete() {
			continue
		}
		mp := strings.TrimSpace(r.MatchPath)
		if mp == "" {
			continue
		}
		lo := LocationOut{MatchPath: mp, TargetPath: strings.TrimSpace(r.TargetPath)}
		if _, ok := seen[lo]; ok {
			continue
		}
		seen[lo] = struct{}{}
		out = append(out, lo)
	}
	return out
}

func timeoutOrDefault(v int) int {
	if v <= 0 {
		return defaultTimeout
	}
	return v
}
