package bruteguard

import (
	"strings"
	"sync"
	"time"

	"nfpanel/nfp/common/logx"
)

/********** 配置 **********/

type Config struct {
	// 失败计数的时间窗；超出后“软清零” fails（不影响已生效的锁）
	Window time.Duration

	// 达阈值直接封禁；未达阈值走指数退避
	MaxFails    int
	Cooldown    time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// 内存清理
	GCInterval time.Duration
	AliveFor   time.Duration
}

func (c *Config) fillDefaults() {
	if c.Window <= 0 {
		c.Window = 15 * time.Minute
	}
	if c.MaxFails <= 0 {
		c.MaxFails = 10
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 15 * time.Minute
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.GCInterval <= 0 {
		c.GCInterval = time.Minute
	}
	if c.AliveFor <= 0 {
		c.AliveFor = 24 * time.Hour
	}
}

/********** 运行时结构 **********/

type entry struct {
	fails       int
	lastFail    time.Time
	lockedUntil time.Time
	lastSeen    time.Time
}

type Guard struct {
	cfg Config

	mu     sync.Mutex
	store  map[string]*entry
	lastGC time.Time
	now    func() time.Time

	log *logx.Logger
}

func New(cfg Config) *Guard {
	cfg.fillDefaults()
	return &Guard{
		cfg:   cfg,
		store: make(map[string]*entry, 1024),
		now:   time.Now,
		log:   logx.New(logx.WithPrefix("bruteguard")),
	}
}

/********** 主流程 **********/

// Allow 认证前调用，返回是否允许继续和需要等待多久
func (g *Guard) Allow(ip, user string) (ok bool, retryAfter time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gcIfNeeded()

	now := g.now()
	var next time.Time
	for _, k := range keys(ip, user) {
		if e := g.get(k, now); e != nil && e.lockedUntil.After(next) {
			next = e.lockedUntil
		}
	}
	if next.After(now) {
		wait := next.Sub(now)
		g.log.Debugf("BLOCK ip=%q user=%q wait=%s", ip, user, wait)
		return false, wait
	}
	return true, 0
}

// Fail 一次失败后调用（用户名不存在/密码错误都视为失败）
func (g *Guard) Fail(ip, user string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gcIfNeeded()

	now := g.now()
	for _, k := range keys(ip, user) {
		e := g.getOrCreate(k, now)
		e.fails++
		e.lastFail = now
		e.lastSeen = now

		// 达到阈值：直接封禁
		if e.fails >= g.cfg.MaxFails {
			e.lockedUntil = now.Add(g.cfg.Cooldown)
			g.log.Debugf("COOL-DOWN key=%s fails=%d", k, e.fails)
			continue
		}
		// 指数退避（饱和到 MaxBackoff）
		backoff := g.cfg.BaseBackoff
		for i := 1; i < e.fails; i++ {
			backoff *= 2
			if backoff >= g.cfg.MaxBackoff {
				backoff = g.cfg.MaxBackoff
				break
			}
		}
		if until := now.Add(backoff); until.After(e.lockedUntil) {
			e.lockedUntil = until
		}
		g.log.Debugf("FAIL key=%s fails=%d backoff=%s", k, e.fails, backoff)
	}
}

// Success 一次成功后调用：清 user 与 ip|user（不清纯 ip，共享出口仍受限）
func (g *Guard) Success(ip, user string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gcIfNeeded()

	now := g.now()
	ip = strings.TrimSpace(ip)
	user = strings.TrimSpace(user)

	clear := make([]string, 0, 2)
	if user != "" {
		clear = append(clear, "user:"+user)
	}
	if ip != "" && user != "" {
		clear = append(clear, "ipuser:"+ip+"|"+user)
	}
	for _, k := range clear {
		if e := g.get(k, now); e != nil {
			e.fails = 0
			e.lockedUntil = time.Time{}
			e.lastSeen = now
		}
	}
}

/********** 可选工具 **********/

type Snapshot struct {
	Fails       int
	LockedUntil time.Time
}

func (g *Guard) Peek(ip, user string) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()

	var s Snapshot
	for _, k := range keys(ip, user) {
		if e := g.get(k, now); e != nil {
			if e.fails > s.Fails {
				s.Fails = e.fails
			}
			if e.lockedUntil.After(s.LockedUntil) {
				s.LockedUntil = e.lockedUntil
			}
		}
	}
	return s
}

func (g *Guard) Clear(ip, user string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	for _, k := range keys(ip, user) {
		if e := g.get(k, now); e != nil {
			e.fails = 0
			e.lockedUntil = time.Time{}
			e.lastSeen = now
		}
	}
}

/********** 内部：存取/GC/Key 计算 **********/

func (g *Guard) get(k string, now time.Time) *entry {
	e := g.store[k]
	if e == nil {
		return nil
	}
	// 软清零 fails；不动 lockedUntil（避免 Window<Cooldown 时提前解封）
	if !e.lastFail.IsZero() && now.Sub(e.lastFail) > g.cfg.Window {
		e.fails = 0
	}
	e.lastSeen = now
	return e
}

func (g *Guard) getOrCreate(k string, now time.Time) *entry {
	if e := g.get(k, now); e != nil {
		return e
	}
	e := &entry{lastSeen: now}
	g.store[k] = e
	return e
}

func (g *Guard) gcIfNeeded() {
	now := g.now()
	if now.Sub(g.lastGC) < g.cfg.GCInterval {
		return
	}
	g.lastGC = now
	for k, e := range g.store {
		if now.Sub(e.lastSeen) > g.cfg.AliveFor {
			delete(g.store, k)
		}
	}
}

func keys(ip, user string) []string {
	ip = strings.TrimSpace(ip)
	user = strings.TrimSpace(user)
	switch {
	case ip != "" && user != "":
		return []string{"ip:" + ip, "user:" + user, "ipuser:" + ip + "|" + user}
	case ip != "":
		return []string{"ip:" + ip}
	case user != "":
		return []string{"user:" + user}
	default:
		return nil
	}
}
