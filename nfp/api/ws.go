package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

/******** 有效期倒计时推送 ********/

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 只放行无 Origin（非浏览器）、本机开发、以及同源
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if strings.Contains(origin, "://localhost:") || strings.Contains(origin, "://127.0.0.1:") {
			return true
		}
		host := r.Host
		if strings.HasPrefix(origin, "http://") {
			return origin[7:] == host
		}
		if strings.HasPrefix(origin, "https://") {
			return origin[8:] == host
		}
		return false
	},
}

// GET /ws/validity?token=<jwt>
// 浏览器 WebSocket 设不了 Authorization 头，token 走查询串。
// 连上后每秒推整页倒计时视图；客户端断开即退订。
func (s *Server) validityWS(c *gin.Context) {
	tk := c.Query("token")
	if tk == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if _, err := s.parseToken(tk); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("ws upgrade: %v", err)
		return
	}
	defer conn.Close()

	ch := s.App.Ticks.Subscribe()
	defer s.App.Ticks.Unsubscribe(ch)

	// 读循环只为感知断连
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case views, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(gin.H{"topic": "validity", "data": views}); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
