package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"

	"nfpanel/nfp/core/assemble"
	"nfpanel/nfp/model"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, CSRFHeader: "X-CSRF-Token"}), srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestMutatingCallAttachesCSRF(t *testing.T) {
	var checks atomic.Int64
	var gotToken atomic.Value

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/check", func(w http.ResponseWriter, r *http.Request) {
		checks.Add(1)
		writeJSON(w, 200, map[string]any{"authenticated": true, "csrf_token": "tok-1"})
	})
	mux.HandleFunc("/api/entities", func(w http.ResponseWriter, r *http.Request) {
		gotToken.Store(r.Header.Get("X-CSRF-Token"))
		writeJSON(w, 200, map[string]any{"success": true})
	})

	c, _ := newTestClient(t, mux)
	p := &assemble.Payload{Name: "x", Kind: model.KindTCP, ListenPort: 80}

	if err := c.CreateProxy(context.Background(), p); err != nil {
		t.Fatalf("CreateProxy: %v", err)
	}
	if got := gotToken.Load(); got != "tok-1" {
		t.Fatalf("csrf header = %v, want tok-1", got)
	}

	// 令牌按会话缓存，第二次提交不再查 auth/check
	if err := c.CreateProxy(context.Background(), p); err != nil {
		t.Fatalf("CreateProxy 2: %v", err)
	}
	if n := checks.Load(); n != 1 {
		t.Fatalf("auth/check called %d times, want 1", n)
	}
}

func TestSeededTokenSkipsAuthCheck(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/check", func(w http.ResponseWriter, r *http.Request) {
		t.Error("auth/check must not be called when a token was handed off")
	})
	mux.HandleFunc("/api/entities/5", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-CSRF-Token") != "handoff" {
			t.Errorf("csrf header = %q", r.Header.Get("X-CSRF-Token"))
		}
		writeJSON(w, 200, map[string]any{"success": true})
	})

	c, _ := newTestClient(t, mux)
	c.SeedToken("handoff")
	if err := c.DeleteProxy(context.Background(), 5); err != nil {
		t.Fatalf("DeleteProxy: %v", err)
	}
}

func TestGetDoesNotTouchSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/check", func(w http.ResponseWriter, r *http.Request) {
		t.Error("read-only call must not trigger auth/check")
	})
	mux.HandleFunc("/api/rules", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-CSRF-Token") != "" {
			t.Error("read-only call must not carry a csrf header")
		}
		writeJSON(w, 200, map[string]any{"success": true, "data": []any{}})
	})

	c, _ := newTestClient(t, mux)
	if _, err := c.ListEnabledRules(context.Background()); err != nil {
		t.Fatalf("ListEnabledRules: %v", err)
	}
}

func TestAuthExpiry(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http 401",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, 401, map[string]any{"error": "Unauthorized"})
			},
		},
		{
			name: "unauthorized body on 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, 200, map[string]any{"success": false, "error": "Unauthorized"})
			},
		},
		{
			name: "chinese login prompt on 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, 200, map[string]any{"success": false, "message": "请先登录"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/api/rules", tt.handler)
			c, _ := newTestClient(t, mux)
			c.SeedToken("stale")

			_, err := c.ListEnabledRules(context.Background())
			if !errors.Is(err, ErrAuthExpired) {
				t.Fatalf("err = %v, want ErrAuthExpired", err)
			}
			if c.Token() != "" {
				t.Fatal("expired session must drop the cached token")
			}
		})
	}
}

func TestErrorShaping(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantMsg    string
	}{
		{
			name: "structured body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, 409, map[string]any{"error": "conflict", "message": "端口已被占用"})
			},
			wantStatus: 409,
			wantMsg:    "端口已被占用",
		},
		{
			name: "plain text body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(500)
				_, _ = w.Write([]byte("backend exploded"))
			},
			wantStatus: 500,
			wantMsg:    "backend exploded",
		},
		{
			name: "empty body synthesizes status line",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(502)
			},
			wantStatus: 502,
			wantMsg:    "502 Bad Gateway",
		},
		{
			name: "error body on 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, 200, map[string]any{"success": false, "error": "invalid_port"})
			},
			wantStatus: 200,
			wantMsg:    "invalid_port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/api/rules", tt.handler)
			c, _ := newTestClient(t, mux)

			_, err := c.ListEnabledRules(context.Background())
			var he *HTTPError
			if !errors.As(err, &he) {
				t.Fatalf("err = %v, want *HTTPError", err)
			}
			if he.Status != tt.wantStatus || he.Message != tt.wantMsg {
				t.Fatalf("got %d %q, want %d %q", he.Status, he.Message, tt.wantStatus, tt.wantMsg)
			}
		})
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := New(Config{BaseURL: srv.URL})
	srv.Close() // 连接必然失败

	_, err := c.ListEnabledRules(context.Background())
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want *NetworkError", err)
	}
}

func TestListProxiesNormalizesSparseItems(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/entities", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{
			"success": true,
			"data": map[string]any{
				"items": map[string]any{
					"1": map[string]any{"id": 2, "name": "b", "kind": "tcp"},
					"0": map[string]any{"id": 1, "name": "a", "kind": "http"},
				},
				"page": 1, "total": 2, "total_pages": 1,
			},
		})
	})

	c, _ := newTestClient(t, mux)
	page, err := c.ListProxies(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("ListProxies: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != 1 || page.Items[1].ID != 2 {
		t.Fatalf("items = %+v, want ids [1 2] in order", page.Items)
	}
	if page.Total != 2 {
		t.Fatalf("total = %d, want 2", page.Total)
	}
}

func TestListEnabledRulesUnwrappedObject(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/rules", func(w http.ResponseWriter, r *http.Request) {
		// 单条结果被设备拆掉了数组外壳
		writeJSON(w, 200, map[string]any{
			"success": true,
			"data":    map[string]any{"id": 9, "name": "cn-only", "category": "geo_whitelist", "enabled": true},
		})
	})

	c, _ := newTestClient(t, mux)
	rules, err := c.ListEnabledRules(context.Background())
	if err != nil {
		t.Fatalf("ListEnabledRules: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != 9 || rules[0].Category != model.CatGeoWhitelist {
		t.Fatalf("rules = %+v", rules)
	}
}

func TestGetProxyNormalizesNested(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/entities/3", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{
			"success": true,
			"data": map[string]any{
				"id": 3, "name": "web", "kind": "http", "listen_port": 443,
				"backends": map[string]any{
					"1": map[string]any{"address": "10.0.0.2", "port": 8081},
					"0": map[string]any{"address": "10.0.0.1", "port": 8080},
				},
				"location_paths": []any{map[string]any{"match_path": "/api"}},
				"proxy_read_timeout": 30,
			},
		})
	})

	c, _ := newTestClient(t, mux)
	cfg, err := c.GetProxy(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetProxy: %v", err)
	}
	if cfg.Kind != model.KindHTTP || len(cfg.Backends) != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Backends[0].Address != "10.0.0.1" || cfg.Backends[1].Address != "10.0.0.2" {
		t.Fatalf("backend order = %+v", cfg.Backends)
	}
	if len(cfg.LocationPaths) != 1 || cfg.LocationPaths[0].MatchPath != "/api" {
		t.Fatalf("location paths = %+v", cfg.LocationPaths)
	}
	if cfg.Timeouts.Read != 30 {
		t.Fatalf("read timeout = %d, want 30", cfg.Timeouts.Read)
	}
}
