// Package client 设备 REST API 的会话化封装：CSRF 注入、
// 登录过期识别、错误整形。所有改状态的调用都必须走这里。
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"nfpanel/nfp/common/logx"
)

type Config struct {
	BaseURL            string
	Timeout            time.Duration
	CSRFHeader         string
	RateLimit          int // 每秒请求数；0 => 不限
	InsecureSkipVerify bool
}

type Client struct {
	cfg     Config
	hc      *http.Client
	limiter *rate.Limiter
	log     *logx.Logger

	sess session
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CSRFHeader == "" {
		cfg.CSRFHeader = "X-CSRF-Token"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	// 设备侧会话用 cookie 维持，必须带 jar
	jar, _ := cookiejar.New(nil)
	tr := &http.Transport{}
	if cfg.InsecureSkipVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	c := &Client{
		cfg: cfg,
		hc:  &http.Client{Timeout: cfg.Timeout, Jar: jar, Transport: tr},
		log: logx.New(logx.WithPrefix("appliance")),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}
	return c
}

/******** 会话（CSRF） ********/

// session CSRF 令牌只活在进程内存里，进程重启即作废
type session struct {
	mu   sync.Mutex
	csrf string
}

// Token 当前持有的 CSRF 令牌（测试与诊断用）
func (c *Client) Token() string {
	c.sess.mu.Lock()
	defer c.sess.mu.Unlock()
	return c.sess.csrf
}

// SeedToken 登录流程拿到的令牌直接交接进来，省一次 auth/check
func (c *Client) SeedToken(tok string) {
	c.sess.mu.Lock()
	c.sess.csrf = tok
	c.sess.mu.Unlock()
}

func (c *Client) clearToken() {
	c.sess.mu.Lock()
	c.sess.csrf = ""
	c.sess.mu.Unlock()
}

// ensureToken 改状态请求前确保有令牌；没有就查一次会话
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	if tok := c.Token(); tok != "" {
		return tok, nil
	}
	ok, tok, err := c.authCheck(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrAuthExpired
	}
	c.SeedToken(tok)
	return tok, nil
}

/******** 请求管线 ********/

// envelope 设备响应的统一外壳
type envelope struct {
	Success       bool            `json:"success"`
	Error         string          `json:"error"`
	Message       string          `json:"message"`
	Data          json.RawMessage `json:"data"`
	Authenticated bool            `json:"authenticated"`
	CSRFToken     string          `json:"csrf_token"`
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	}
	return false
}

// 设备在 200 里塞“未登录”的两种写法
func unauthorizedBody(env *envelope) bool {
	for _, s := range []string{env.Error, env.Message} {
		switch strings.TrimSpace(s) {
		case "Unauthorized", "请先登录":
			return true
		}
	}
	return false
}

// do 发一次请求并解出 data。错误整形规则：
//   - 传输失败 => *NetworkError
//   - 401 或未登录 body => ErrAuthExpired（并清掉令牌）
//   - 其余非 success => *HTTPError，消息优先用设备自己的
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if isMutating(method) {
		tok, err := c.ensureToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set(c.cfg.CSRFHeader, tok)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Warnf("%s %s: %v", method, path, err)
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &NetworkError{Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.clearToken()
		return ErrAuthExpired
	}

	var env envelope
	parsed := json.Unmarshal(raw, &env) == nil
	if parsed && unauthorizedBody(&env) {
		c.clearToken()
		return ErrAuthExpired
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		he := &HTTPError{Status: resp.StatusCode}
		if parsed && (env.Error != "" || env.Message != "") {
			he.Code = env.Error
			he.Message = env.Message
			if he.Message == "" {
				he.Message = env.Error
			}
		} else if s := strings.TrimSpace(string(raw)); s != "" {
			he.Message = s
		} else {
			// body 为空就合成一条状态行
			he.Message = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return he
	}

	if parsed && !env.Success && (env.Error != "" || env.Message != "") {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		return &HTTPError{Status: resp.StatusCode, Code: env.Error, Message: msg}
	}

	if out != nil {
		if !parsed {
			return fmt.Errorf("unexpected response body for %s %s", method, path)
		}
		if len(env.Data) > 0 {
			return json.Unmarshal(env.Data, out)
		}
	}
	return nil
}

// authCheck 查一次会话状态并带回 CSRF 令牌
func (c *Client) authCheck(ctx context.Context) (ok bool, csrf string, err error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, "", err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/auth/check", nil)
	if err != nil {
		return false, "", err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return false, "", &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return false, "", nil
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return false, "", &NetworkError{Err: err}
	}
	return env.Authenticated, env.CSRFToken, nil
}
