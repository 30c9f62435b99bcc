package app

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"nfpanel/nfp/core/countdown"
	"nfpanel/nfp/core/formstate"
	"nfpanel/nfp/model"
)

/* -------------------- 表单会话注册表 -------------------- */

type formEntry struct {
	sess      *formstate.Session
	lastTouch time.Time
}

// FormRegistry 按不透明 id 托管表单会话；过期会话惰性回收
type FormRegistry struct {
	mu      sync.Mutex
	m       map[string]*formEntry
	ttl     time.Duration
	lastGC  time.Time
	nowFunc func() time.Time
}

func NewFormRegistry(ttl time.Duration) *FormRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &FormRegistry{
		m:       make(map[string]*formEntry),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

func newFormID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (r *FormRegistry) Create(kind model.Kind) (string, *formstate.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gcLocked()

	id := newFormID()
	s := formstate.NewSession(kind)
	r.m[id] = &formEntry{sess: s, lastTouch: r.nowFunc()}
	return id, s
}

func (r *FormRegistry) Get(id string) (*formstate.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gcLocked()

	e, ok := r.m[id]
	if !ok {
		return nil, false
	}
	e.lastTouch = r.nowFunc()
	return e.sess, true
}

// Drop 表单关闭/取消/提交成功后销毁
func (r *FormRegistry) Drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
}

func (r *FormRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

func (r *FormRegistry) gcLocked() {
	now := r.nowFunc()
	if now.Sub(r.lastGC) < time.Minute {
		return
	}
	r.lastGC = now
	for id, e := range r.m {
		if now.Sub(e.lastTouch) > r.ttl {
			delete(r.m, id)
		}
	}
}

/* -------------------- 倒计时广播 -------------------- */

// TickHub 把每跳的倒计时快照扇出给所有在线订阅者；
// 消费不动的订阅者直接丢帧，不反压定时器
type TickHub struct {
	mu   sync.Mutex
	subs map[chan []countdown.View]struct{}
}

func NewTickHub() *TickHub {
	return &TickHub{subs: make(map[chan []countdown.View]struct{})}
}

func (h *TickHub) Subscribe() chan []countdown.View {
	ch := make(chan []countdown.View, 4)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *TickHub) Unsubscribe(ch chan []countdown.View) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *TickHub) Broadcast(views []countdown.View) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- views:
		default:
		}
	}
}
