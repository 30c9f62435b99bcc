package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"nfpanel/nfp/core/assemble"
	"nfpanel/nfp/core/normalize"
	"nfpanel/nfp/model"
)

/******** 转发配置 ********/

type ProxyPage struct {
	Items      []model.ProxyConfig `json:"items"`
	Page       int                 `json:"page"`
	Total      int64               `json:"total"`
	TotalPages int                 `json:"total_pages"`
}

// ListProxies 列表接口的 items 存在稀疏表/脱壳两种历史编码，统一过整理器
func (c *Client) ListProxies(ctx context.Context, page, size int) (*ProxyPage, error) {
	var data struct {
		Items      any   `json:"items"`
		Page       int   `json:"page"`
		Total      int64 `json:"total"`
		TotalPages int   `json:"total_pages"`
	}
	path := fmt.Sprintf("/api/entities?page=%d&page_size=%d", page, size)
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}

	out := &ProxyPage{Page: data.Page, Total: data.Total, TotalPages: data.TotalPages}
	if err := normalize.Into(data.Items, &out.Items); err != nil {
		return nil, err
	}
	if out.Items == nil {
		out.Items = []model.ProxyConfig{}
	}
	return out, nil
}

func (c *Client) GetProxy(ctx context.Context, id int64) (*model.ProxyConfig, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/entities/%d", id), nil, &raw); err != nil {
		return nil, err
	}

	// 嵌套的 backends/location_paths 同样可能被编成稀疏表
	var loose struct {
		ID            int64   `json:"id"`
		Name          string  `json:"name"`
		Kind          string  `json:"kind"`
		ListenPort    int     `json:"listen_port"`
		ServerName    string  `json:"server_name"`
		Backends      any     `json:"backends"`
		LocationPaths any     `json:"location_paths"`
		BackendPath   string  `json:"backend_path"`
		Connect       int     `json:"proxy_connect_timeout"`
		Send          int     `json:"proxy_send_timeout"`
		Read          int     `json:"proxy_read_timeout"`
		IPRuleIDs     []int64 `json:"ip_rule_ids"`
		Enabled       bool    `json:"enabled"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, err
	}

	kind, err := model.ParseKind(loose.Kind)
	if err != nil {
		return nil, err
	}
	cfg := &model.ProxyConfig{
		ID:          loose.ID,
		Name:        loose.Name,
		Kind:        kind,
		ListenPort:  loose.ListenPort,
		ServerName:  loose.ServerName,
		BackendPath: loose.BackendPath,
		Timeouts:    model.Timeouts{Connect: loose.Connect, Send: loose.Send, Read: loose.Read},
		IPRuleIDs:   loose.IPRuleIDs,
		Enabled:     loose.Enabled,
	}
	if err := normalize.Into(loose.Backends, &cfg.Backends); err != nil {
		return nil, err
	}
	if err := normalize.Into(loose.LocationPaths, &cfg.LocationPaths); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Client) CreateProxy(ctx context.Context, p *assemble.Payload) error {
	return c.do(ctx, http.MethodPost, "/api/entities", p, nil)
}

func (c *Client) UpdateProxy(ctx context.Context, id int64, p *assemble.Payload) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/entities/%d", id), p, nil)
}

func (c *Client) DeleteProxy(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/entities/%d", id), nil, nil)
}

func (c *Client) EnableProxy(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/entities/%d/enable", id), nil, nil)
}

func (c *Client) DisableProxy(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/entities/%d/disable", id), nil, nil)
}

/******** 访问规则 ********/

// ListEnabledRules 规则缓存的数据源；整体返回，永不分页
func (c *Client) ListEnabledRules(ctx context.Context) ([]model.Rule, error) {
	var data any
	if err := c.do(ctx, http.MethodGet, "/api/rules?status=1", nil, &data); err != nil {
		return nil, err
	}
	var rules []model.Rule
	if err := normalize.Into(data, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

/******** 会话 ********/

// AuthCheck 对外暴露的会话探测；成功时顺带缓存 CSRF 令牌
func (c *Client) AuthCheck(ctx context.Context) (bool, error) {
	ok, tok, err := c.authCheck(ctx)
	if err != nil {
		return false, err
	}
	if ok && tok != "" {
		c.SeedToken(tok)
	}
	return ok, nil
}
