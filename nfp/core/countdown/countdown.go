// Package countdown 规则剩余有效期的倒计时：整页共用一个定时器，
// 每跳对所有活动单元减一秒并重算展示文本。行集变化时必须先停旧
// 定时器再起新的，避免双定时器对同一单元双倍扣减。
package countdown

import (
	"context"
	"sort"
	"sync"
	"time"

	"nfpanel/nfp/common"
	"nfpanel/nfp/common/logx"
)

// Entry 一行的初始剩余时长；Permanent 行没有时长，整体跳过
type Entry struct {
	ID        int64
	Remaining time.Duration
	Permanent bool
}

// View 一次 tick 后某行的展示状态
type View struct {
	ID      int64  `json:"id"`
	Label   string `json:"label"`
	Expired bool   `json:"expired"`
}

type cell struct {
	remaining time.Duration
	permanent bool
}

// Board 当前页面可见行的倒计时单元集合
type Board struct {
	mu    sync.Mutex
	cells map[int64]*cell
}

func NewBoard() *Board {
	return &Board{cells: make(map[int64]*cell)}
}

// Reset 行集变化（翻页/筛选/重载）后整体替换
func (b *Board) Reset(entries []Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cells = make(map[int64]*cell, len(entries))
	for _, e := range entries {
		b.cells[e.ID] = &cell{remaining: e.Remaining, permanent: e.Permanent}
	}
}

// Tick 所有活动单元减一秒；到零及以下改挂“已过期”，绝不出现负数
func (b *Board) Tick() []View {
	return b.tickBy(time.Second)
}

func (b *Board) tickBy(step time.Duration) []View {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]View, 0, len(b.cells))
	for id, c := range b.cells {
		if c.permanent {
			continue
		}
		c.remaining -= step
		if c.remaining <= 0 {
			c.remaining = 0
			out = append(out, View{ID: id, Label: common.ExpiredLabel, Expired: true})
			continue
		}
		out = append(out, View{ID: id, Label: common.FormatDuration(c.remaining)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

/******** Scheduler ********/

// Handle 一轮定时任务的取消句柄；调用方必须持有并在行集变化时释放
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop 停掉本轮定时并等 goroutine 退出；可重复调用
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.cancel()
	<-h.done
}

func (h *Handle) Done() <-chan struct{} { return h.done }

// Scheduler 同一时刻最多一轮定时在跑；Arm 会先停掉上一轮
type Scheduler struct {
	interval time.Duration

	mu  sync.Mutex
	cur *Handle
	log *logx.Logger
}

func NewScheduler(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		interval: interval,
		log:      logx.New(logx.WithPrefix("countdown")),
	}
}

// Arm 启动新一轮：每 interval 调一次 board.Tick 并回调 onTick。
// ctx 取消、Handle.Stop 二者任一都会终止本轮。
func (s *Scheduler) Arm(ctx context.Context, board *Board, onTick func([]View)) *Handle {
	// 停旧与换新必须在同一把锁里完成；分两段锁的话并发 Arm
	// 会读到同一个 prev，输掉安装的那轮就没人能停了
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Stop()

	cctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	s.cur = h

	go func() {
		defer close(h.done)
		tk := time.NewTicker(s.interval)
		defer tk.Stop()
		for {
			select {
			case <-cctx.Done():
				s.log.Debugf("round stopped")
				return
			case <-tk.C:
				if onTick != nil {
					onTick(board.Tick())
				}
			}
		}
	}()
	return h
}

// Disarm 停掉当前一轮（若有）
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	cur := s.cur
	s.cur = nil
	s.mu.Unlock()
	cur.Stop()
}
