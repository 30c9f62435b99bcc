package config

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"nfpanel/nfp/common"
	"nfpanel/nfp/common/logx"
)

type DBPoolCfg struct {
	MaxOpen        int `yaml:"max_open"`
	MaxIdle        int `yaml:"max_idle"`
	MaxLifetimeSec int `yaml:"max_lifetime_sec"`
}

type DBCfg struct {
	Driver string    `yaml:"driver"`
	DSN    string    `yaml:"dsn"`
	Pool   DBPoolCfg `yaml:"pool"`
}

type AdminAuth struct {
	AdminIDs  []int  `yaml:"admin_ids"`
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  int    `yaml:"token_ttl"` // 分钟
}

type TLSConfig struct {
	Cert     string `yaml:"cert"`
	Key      string `yaml:"key"`
	SniGuard string `yaml:"sniGuard"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ApplianceCfg 后端设备 API 的接入参数
type ApplianceCfg struct {
	BaseURL            string `yaml:"base_url"`
	TimeoutSec         int    `yaml:"timeout_sec"`
	CSRFHeader         string `yaml:"csrf_header"`
	RateLimit          int    `yaml:"rate_limit"` // 每秒请求数；0 => 不限
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

type Config struct {
	Listen    string       `yaml:"listen"`
	DB        DBCfg        `yaml:"db"`
	Admin     AdminAuth    `yaml:"admin"`
	Appliance ApplianceCfg `yaml:"appliance"`
	TLSConfig TLSConfig    `yaml:"tls"`
	Logging   Logging      `yaml:"logging"`
}

// 默认 DSN（当 DSN 为空时才生效）
func defaultSQLiteDSN() string {
	base := "/var/lib/nfpanel"
	if common.IsDesktop() {
		base = "./lib"
	}
	v := url.Values{}
	v.Set("_pragma_busy_timeout", "5000")
	v.Set("_pragma_journal_mode", "WAL")
	v.Set("_pragma_synchronous", "NORMAL")
	v.Set("_pragma_foreign_keys", "ON")
	p := filepath.ToSlash(filepath.Join(base, "panel.db"))
	return "file:" + p + "?" + v.Encode()
}

// ensureDirForFileDSN 确保 file:DSN 的目录存在（对相对/绝对路径都可）
func ensureDirForFileDSN(dsn string) error {
	if !strings.HasPrefix(dsn, "file:") {
		return nil
	}
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return os.MkdirAll(filepath.Dir(p), 0o755)
}

var log = logx.New(logx.WithPrefix("config"))

func Load(p string) (*Config, string, error) {
	// 先读指定路径，失败则读 /etc/nfpanel/config.yaml
	b, err := os.ReadFile(p)
	if err != nil {
		p = "/etc/nfpanel/config.yaml"
		b, err = os.ReadFile(p)
		if err != nil {
			log.Errorf("open ./config/config.yaml: no such file or directory")
			return nil, p, err
		}
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, p, err
	}

	if c.Listen == "" {
		c.Listen = ":8442"
	}

	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Driver == "sqlite" && c.DB.DSN == "" {
		c.DB.DSN = defaultSQLiteDSN()
	}
	if err := ensureDirForFileDSN(c.DB.DSN); err != nil {
		return nil, p, err
	}

	if len(c.Admin.AdminIDs) == 0 {
		c.Admin.AdminIDs = []int{1}
	}
	if c.Admin.TokenTTL <= 0 {
		c.Admin.TokenTTL = 60 * 2
	}
	if c.Admin.JWTSecret == "" {
		return nil, p, errors.New("admin.jwt_secret is required")
	}

	if c.Appliance.BaseURL == "" {
		return nil, p, errors.New("appliance.base_url is required")
	}
	c.Appliance.BaseURL = strings.TrimRight(c.Appliance.BaseURL, "/")
	if c.Appliance.TimeoutSec <= 0 {
		c.Appliance.TimeoutSec = 10
	}
	if c.Appliance.CSRFHeader == "" {
		c.Appliance.CSRFHeader = "X-CSRF-Token"
	}

	return &c, p, nil
}
