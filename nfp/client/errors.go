package client

import (
	"errors"
	"fmt"
)

// ErrAuthExpired 会话失效信号：401 或 body 里的“未登录”。
// 不是可恢复错误，调用方据此强制重建会话，绝不重试。
var ErrAuthExpired = errors.New("appliance session expired")

// NetworkError 传输层失败，没有收到响应
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError 非 2xx 或带错误体的响应；Message 原样来自设备
type HTTPError struct {
	Status  int
	Code    string
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("http %d", e.Status)
}
