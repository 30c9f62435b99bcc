package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"nfpanel/nfp/app"
	"nfpanel/nfp/client"
	"nfpanel/nfp/common"
	"nfpanel/nfp/common/config"
	"nfpanel/nfp/common/logx"
	"nfpanel/nfp/core/countdown"
	"nfpanel/nfp/core/ruleconflict"
	"nfpanel/nfp/db"
	"nfpanel/nfp/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// 假设备：auth/check 发 CSRF；其余路由由各测试注册
func newFakeAppliance(t *testing.T) (*http.ServeMux, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/check", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"authenticated": true, "csrf_token": "tok-1"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return mux, srv
}

func newTestServer(t *testing.T, applianceURL string) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	gdb, err := db.OpenGorm("sqlite", dsn, config.DBPoolCfg{MaxOpen: 1})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.MigrateSQL(gdb.GormDataSource, gdb.Driver); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	appliance := client.New(client.Config{BaseURL: applianceURL, CSRFHeader: "X-CSRF-Token"})
	a := &app.App{
		Cfg: &config.Config{
			Admin: config.AdminAuth{AdminIDs: []int{1}, JWTSecret: "test-secret", TokenTTL: 60},
		},
		DB:        gdb,
		Appliance: appliance,
		Rules:     ruleconflict.NewCache(appliance.ListEnabledRules),
		Board:     countdown.NewBoard(),
		Countdown: countdown.NewScheduler(time.Second),
		Ticks:     app.NewTickHub(),
		Forms:     app.NewFormRegistry(30 * time.Minute),
		Ctx:       context.Background(),
		Log:       logx.New(logx.WithPrefix("app")),
	}
	s := New(a)
	return s, s.Router()
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func loginToken(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/login", "", map[string]string{
		"username": "admin", "password": "nfpanel",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.Token
}

/******** 登录 / 鉴权 ********/

func TestLoginAndMe(t *testing.T) {
	_, appl := newFakeAppliance(t)
	_, r := newTestServer(t, appl.URL)

	tk := loginToken(t, r)

	w := doJSON(t, r, http.MethodGet, "/api/me", tk, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me = %d body=%s", w.Code, w.Body.String())
	}
	var me struct {
		Username string `json:"username"`
		IsAdmin  bool   `json:"is_admin"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &me)
	if me.Username != "admin" || !me.IsAdmin {
		t.Fatalf("me = %+v", me)
	}

	if w := doJSON(t, r, http.MethodGet, "/api/me", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d, want 401", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/login", "", map[string]string{
		"username": "admin", "password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password = %d, want 401", w.Code)
	}
}

func TestLoginDisabledUser(t *testing.T) {
	_, appl := newFakeAppliance(t)
	s, r := newTestServer(t, appl.URL)

	g := s.App.DB.GormDataSource
	u := model.User{
		Username:       "ops",
		Password:       "secret123",
		PasswordSha256: common.HashUP("secret123"),
		Status:         "disabled",
	}
	if err := g.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	// 口令对但账号停用：403，不是模糊 401
	w := doJSON(t, r, http.MethodPost, "/api/login", "", map[string]string{
		"username": "ops", "password": "secret123",
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("disabled login = %d body=%s, want 403", w.Code, w.Body.String())
	}

	// 口令错的停用账号仍然走模糊 401
	w = doJSON(t, r, http.MethodPost, "/api/login", "", map[string]string{
		"username": "ops", "password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("disabled + bad password = %d, want 401", w.Code)
	}
}

/******** 表单生命周期 ********/

type formResp struct {
	FormID string `json:"form_id"`
	Kind   string `json:"kind"`
	Rows   []struct {
		Address   string `json:"address"`
		Port      int    `json:"port"`
		Weight    int    `json:"weight"`
		MatchPath string `json:"match_path"`
	} `json:"rows"`
	PathVisible bool `json:"path_visible"`
	Consistency struct {
		Consistent bool     `json:"consistent"`
		Distinct   []string `json:"distinct"`
	} `json:"consistency"`
}

func decodeForm(t *testing.T, w *httptest.ResponseRecorder) formResp {
	t.Helper()
	var f formResp
	if err := json.Unmarshal(w.Body.Bytes(), &f); err != nil {
		t.Fatalf("decode form: %v body=%s", err, w.Body.String())
	}
	return f
}

func TestFormRowsAndSharedField(t *testing.T) {
	_, appl := newFakeAppliance(t)
	_, r := newTestServer(t, appl.URL)
	tk := loginToken(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/form", tk, map[string]string{"kind": "http"})
	if w.Code != http.StatusOK {
		t.Fatalf("create form = %d body=%s", w.Code, w.Body.String())
	}
	f := decodeForm(t, w)
	if f.FormID == "" || len(f.Rows) != 1 || f.Rows[0].Weight != 1 {
		t.Fatalf("fresh form = %+v", f)
	}
	base := "/api/form/" + f.FormID

	// 加一行，主行 MatchPath 扩散到新行
	if w := doJSON(t, r, http.MethodPost, base+"/row", tk, nil); w.Code != http.StatusOK {
		t.Fatalf("add row = %d", w.Code)
	}
	w = doJSON(t, r, http.MethodPut, base+"/row/0", tk, map[string]any{
		"address": "10.0.0.1", "port": 8080, "match_path": "/app",
	})
	f = decodeForm(t, w)
	if len(f.Rows) != 2 || f.Rows[1].MatchPath != "/app" {
		t.Fatalf("shared field not propagated: %+v", f.Rows)
	}

	// 清空主行 MatchPath，所有行一起清掉
	w = doJSON(t, r, http.MethodPut, base+"/row/0", tk, map[string]any{"match_path": ""})
	f = decodeForm(t, w)
	if f.Rows[0].MatchPath != "" || f.Rows[1].MatchPath != "" {
		t.Fatalf("blank primary must clear all rows: %+v", f.Rows)
	}

	// 删到只剩一行后再删：409，行保持不动
	if w := doJSON(t, r, http.MethodDelete, base+"/row/1", tk, nil); w.Code != http.StatusOK {
		t.Fatalf("remove row = %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodDelete, base+"/row/0", tk, nil); w.Code != http.StatusConflict {
		t.Fatalf("remove last row = %d, want 409", w.Code)
	}
	w = doJSON(t, r, http.MethodGet, base, tk, nil)
	f = decodeForm(t, w)
	if len(f.Rows) != 1 || f.Rows[0].Address != "10.0.0.1" {
		t.Fatalf("row must survive rejected removal: %+v", f.Rows)
	}
}

func TestFormPathConsistencyAdvisory(t *testing.T) {
	_, appl := newFakeAppliance(t)
	_, r := newTestServer(t, appl.URL)
	tk := loginToken(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/form", tk, map[string]string{"kind": "http"})
	f := decodeForm(t, w)
	base := "/api/form/" + f.FormID

	doJSON(t, r, http.MethodPut, base+"/row/0", tk, map[string]any{
		"address": "10.0.0.1", "port": 80, "target_path": "/a",
	})
	doJSON(t, r, http.MethodPost, base+"/row", tk, nil)
	doJSON(t, r, http.MethodPut, base+"/row/1", tk, map[string]any{
		"address": "10.0.0.2", "port": 81, "target_path": "/b",
	})

	w = doJSON(t, r, http.MethodGet, base, tk, nil)
	f = decodeForm(t, w)
	if f.Consistency.Consistent {
		t.Fatal("distinct target paths must be flagged")
	}
	if len(f.Consistency.Distinct) != 2 {
		t.Fatalf("distinct = %v", f.Consistency.Distinct)
	}
}

/******** 规则选择 ********/

func TestFormRuleConflictRejected(t *testing.T) {
	mux, appl := newFakeAppliance(t)
	mux.HandleFunc("/api/rules", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"success": true, "data": []map[string]any{
			{"id": 1, "name": "wl", "category": "ip_whitelist", "enabled": true},
			{"id": 2, "name": "bl", "category": "ip_blacklist", "enabled": true},
			{"id": 3, "name": "geo", "category": "geo_whitelist", "enabled": true},
		}})
	})
	s, r := newTestServer(t, appl.URL)
	if _, err := s.App.Rules.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh rules: %v", err)
	}
	tk := loginToken(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/form", tk, map[string]string{"kind": "http"})
	f := decodeForm(t, w)
	base := "/api/form/" + f.FormID

	if w := doJSON(t, r, http.MethodPost, base+"/rule", tk, map[string]any{"rule_id": 1}); w.Code != http.StatusOK {
		t.Fatalf("add rule 1 = %d body=%s", w.Code, w.Body.String())
	}
	// 对立类别立即拒绝
	if w := doJSON(t, r, http.MethodPost, base+"/rule", tk, map[string]any{"rule_id": 2}); w.Code != http.StatusConflict {
		t.Fatalf("conflicting rule = %d, want 409", w.Code)
	}
	// 重复选择同样拒绝
	if w := doJSON(t, r, http.MethodPost, base+"/rule", tk, map[string]any{"rule_id": 1}); w.Code != http.StatusConflict {
		t.Fatalf("duplicate rule = %d, want 409", w.Code)
	}

	// 可选列表：排除已选与冲突，geo 独立轴不受影响
	w = doJSON(t, r, http.MethodGet, base+"/rule/available", tk, nil)
	var avail struct {
		Items []struct {
			ID int64 `json:"id"`
		} `json:"items"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &avail)
	if len(avail.Items) != 1 || avail.Items[0].ID != 3 {
		t.Fatalf("available = %+v", avail.Items)
	}

	// 移除后对立类别重新可选
	if w := doJSON(t, r, http.MethodDelete, base+"/rule/1", tk, nil); w.Code != http.StatusOK {
		t.Fatalf("remove rule = %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, base+"/rule", tk, map[string]any{"rule_id": 2}); w.Code != http.StatusOK {
		t.Fatalf("re-add opposite = %d body=%s", w.Code, w.Body.String())
	}
}

/******** 提交 ********/

func TestSubmitFormCreatesEntity(t *testing.T) {
	mux, appl := newFakeAppliance(t)
	var got map[string]any
	mux.HandleFunc("/api/entities", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, 200, map[string]any{"success": true})
	})
	_, r := newTestServer(t, appl.URL)
	tk := loginToken(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/form", tk, map[string]string{"kind": "http"})
	f := decodeForm(t, w)
	base := "/api/form/" + f.FormID

	doJSON(t, r, http.MethodPut, base, tk, map[string]any{"name": "web", "listen_port": 443})
	doJSON(t, r, http.MethodPut, base+"/row/0", tk, map[string]any{"address": "10.0.0.1", "port": 8080})

	if w := doJSON(t, r, http.MethodPost, base+"/submit", tk, nil); w.Code != http.StatusOK {
		t.Fatalf("submit = %d body=%s", w.Code, w.Body.String())
	}
	if got["name"] != "web" || got["location_path"] != "/" {
		t.Fatalf("payload = %v", got)
	}
	if v, ok := got["location_paths"]; !ok || v != nil {
		t.Fatalf("location_paths = %v, want explicit null", v)
	}

	// 成功后表单销毁
	if w := doJSON(t, r, http.MethodGet, base, tk, nil); w.Code != http.StatusNotFound {
		t.Fatalf("form after submit = %d, want 404", w.Code)
	}
}

func TestSubmitValidationAndAuthExpiry(t *testing.T) {
	mux, appl := newFakeAppliance(t)
	mux.HandleFunc("/api/entities", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, map[string]any{"error": "Unauthorized"})
	})
	_, r := newTestServer(t, appl.URL)
	tk := loginToken(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/form", tk, map[string]string{"kind": "http"})
	f := decodeForm(t, w)
	base := "/api/form/" + f.FormID

	// 没有完整后端行：400，表单保留
	doJSON(t, r, http.MethodPut, base, tk, map[string]any{"name": "web", "listen_port": 443})
	if w := doJSON(t, r, http.MethodPost, base+"/submit", tk, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("empty submit = %d, want 400", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, base, tk, nil); w.Code != http.StatusOK {
		t.Fatalf("form must survive failed submit: %d", w.Code)
	}

	// 设备侧会话失效：401 + auth_expired，表单仍可重交
	doJSON(t, r, http.MethodPut, base+"/row/0", tk, map[string]any{"address": "10.0.0.1", "port": 8080})
	w = doJSON(t, r, http.MethodPost, base+"/submit", tk, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expired submit = %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != "auth_expired" {
		t.Fatalf("code = %q, want auth_expired", resp.Code)
	}
	if w := doJSON(t, r, http.MethodGet, base, tk, nil); w.Code != http.StatusOK {
		t.Fatalf("form must survive expired submit: %d", w.Code)
	}
}
