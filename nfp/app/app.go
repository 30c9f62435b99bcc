package app

import (
	"context"
	"fmt"
	"time"

	"nfpanel/nfp/client"
	"nfpanel/nfp/common/bruteguard"
	"nfpanel/nfp/common/config"
	"nfpanel/nfp/common/logx"
	"nfpanel/nfp/core/countdown"
	"nfpanel/nfp/core/ruleconflict"
	"nfpanel/nfp/db"
	"nfpanel/nfp/model"
)

type App struct {
	Cfg     *config.Config
	CfgPath string
	DB      *db.DB

	Guard     *bruteguard.Guard
	Appliance *client.Client

	// 启用规则的整体替换缓存；所有表单共享读，刷新走 last-write-wins
	Rules *ruleconflict.Cache

	// 倒计时：全局一个调度器，规则集变化时重置 Board 并重挂
	Board     *countdown.Board
	Countdown *countdown.Scheduler
	Ticks     *TickHub

	// 表单会话：一次表单交互一个，绝不跨表单共享
	Forms *FormRegistry

	Ctx    context.Context
	Cancel context.CancelFunc

	Log *logx.Logger
}

var log = logx.New(logx.WithPrefix("app"))

func New(cfgPath string) (*App, error) {
	cfg, cfgP, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	a := &App{
		Cfg:     cfg,
		CfgPath: cfgP,
		Log:     log,
	}
	logx.SetLevelString(cfg.Logging.Level)
	a.Log.Infof("config loaded from %s", cfgP)

	gdb, err := db.OpenGorm(cfg.DB.Driver, cfg.DB.DSN, cfg.DB.Pool)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.MigrateSQL(gdb.GormDataSource, gdb.Driver); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.DB = gdb
	a.Log.Infof("db connected (driver=%s)", gdb.Driver)

	a.Appliance = client.New(client.Config{
		BaseURL:            cfg.Appliance.BaseURL,
		Timeout:            time.Duration(cfg.Appliance.TimeoutSec) * time.Second,
		CSRFHeader:         cfg.Appliance.CSRFHeader,
		RateLimit:          cfg.Appliance.RateLimit,
		InsecureSkipVerify: cfg.Appliance.InsecureSkipVerify,
	})
	a.Log.Infof("appliance client ready (base=%s)", cfg.Appliance.BaseURL)

	a.Rules = ruleconflict.NewCache(a.Appliance.ListEnabledRules)
	a.Board = countdown.NewBoard()
	a.Countdown = countdown.NewScheduler(time.Second)
	a.Ticks = NewTickHub()
	a.Forms = NewFormRegistry(30 * time.Minute)

	a.Guard = bruteguard.New(bruteguard.Config{
		Window:      10 * time.Minute,
		MaxFails:    5,
		Cooldown:    30 * time.Minute,
		BaseBackoff: 3 * time.Second,
		MaxBackoff:  1 * time.Minute,
		GCInterval:  1 * time.Minute,
		AliveFor:    12 * time.Hour,
	})
	a.Log.Infof("bruteguard ready (maxFails=%d, cooldown=%s)", 5, 30*time.Minute)

	return a, nil
}

/* -------------------- 启动 & 后台刷新 -------------------- */

func (a *App) Start() error {
	a.Ctx, a.Cancel = context.WithCancel(context.Background())

	// 先拉一次规则，失败不挡启动（设备可能暂时不可达）
	if _, err := a.RefreshRules(a.Ctx); err != nil {
		a.Log.Warnf("initial rule refresh failed: %v", err)
	}
	go a.watchRules(60 * time.Second)
	a.Log.Infof("rule watcher started (interval=60s)")
	return nil
}

// RefreshRules 刷新规则缓存并重挂倒计时
func (a *App) RefreshRules(ctx context.Context) ([]model.Rule, error) {
	rules, err := a.Rules.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	a.rearmCountdown(rules)
	return rules, nil
}

func (a *App) rearmCountdown(rules []model.Rule) {
	now := time.Now()
	entries := make([]countdown.Entry, 0, len(rules))
	for _, r := range rules {
		e := countdown.Entry{ID: r.ID, Permanent: true}
		if r.ExpireAt != nil && !r.ExpireAt.IsZero() {
			e.Permanent = false
			e.Remaining = r.ExpireAt.Sub(now)
		}
		entries = append(entries, e)
	}
	a.Board.Reset(entries)
	// Arm 内部先停旧一轮，不会出现双定时器
	a.Countdown.Arm(a.Ctx, a.Board, a.Ticks.Broadcast)
}

func (a *App) watchRules(interval time.Duration) {
	tk := time.NewTicker(interval)
	defer tk.Stop()
	for {
		select {
		case <-a.Ctx.Done():
			a.Log.Debugf("rule watcher exit")
			return
		case <-tk.C:
			if _, err := a.RefreshRules(a.Ctx); err != nil {
				a.Log.Warnf("rule refresh failed: %v", err)
			}
		}
	}
}

/* -------------------- 关闭 -------------------- */

func (a *App) Stop() error {
	a.Countdown.Disarm()
	if a.Cancel != nil {
		a.Cancel()
	}
	a.Log.Infof("app stopped")
	return nil
}
