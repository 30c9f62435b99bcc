package common

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

func PasswordOK(dbPlain, dbSHA256, inputPlain string) bool {
	if dbPlain != "" && dbPlain == inputPlain {
		return true
	}
	if dbSHA256 != "" && dbSHA256 == inputPlain {
		return true
	}
	return false
}

// password_sha256 = SHA256(password)
func HashUP(pass string) string {
	sum := sha256.Sum256([]byte(pass))
	return hex.EncodeToString(sum[:])
}

func StatusOK(s string) bool { return strings.EqualFold(s, "enabled") }

func GetPage(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ = strconv.Atoi(c.DefaultQuery("size", "10"))
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 10
	}
	return
}

func IsAdminID(adminIDs []int, id int64) bool {
	for _, v := range adminIDs {
		if int64(v) == id {
			return true
		}
	}
	return false
}

func GetAuth(c *gin.Context) (uid int64, isAdmin bool) {
	if v, ok := c.Get("uid"); ok {
		switch t := v.(type) {
		case int64:
			uid = t
		case int:
			uid = int64(t)
		}
	}
	if v, ok := c.Get("isAdmin"); ok {
		if b, ok := v.(bool); ok {
			isAdmin = b
		}
	}
	return
}

func IsDesktop() bool { // Win/macOS 视为“开发机”
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}

/******** Duration 展示 ********/

const ExpiredLabel = "已过期"

// FormatDuration 剩余时长的人类可读形式：
// “2天3小时”、“3小时45分钟”、“45分钟12秒”、“12秒”；<=0 返回 ExpiredLabel。
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return ExpiredLabel
	}
	secs := int64(d / time.Second)
	days := secs / 86400
	hours := (secs % 86400) / 3600
	mins := (secs % 3600) / 60
	s := secs % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%d天%d小时", days, hours)
	case hours > 0:
		return fmt.Sprintf("%d小时%d分钟", hours, mins)
	case mins > 0:
		return fmt.Sprintf("%d分钟%d秒", mins, s)
	default:
		return fmt.Sprintf("%d秒", s)
	}
}

/******** 小工具 ********/

// readPEMorFile: 若字符串本身包含 "-----BEGIN" 则视为 PEM 内容，否则按路径读取文件
func ReadPEMorFile(s string) ([]byte, error) {
	if strings.Contains(s, "-----BEGIN ") {
		return []byte(s), nil
	}
	b, err := os.ReadFile(filepath.Clean(s))
	if err != nil {
		return nil, err
	}
	return b, nil
}

// 解析逗号分隔的域名/通配符；空串 => 禁用
func ParseGuardList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// 支持通配符 "*.example.com"；其余精确匹配（大小写不敏感）
func MatchAnyHostPattern(host string, patterns []string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	for _, pat := range patterns {
		if wildcardMatch(host, pat) {
			return true
		}
	}
	return false
}

func wildcardMatch(host, pattern string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}
	if !strings.Contains(pattern, "*") {
		return host == pattern
	}
	// 仅支持前缀通配形式：*.example.com
	if strings.HasPrefix(pattern, "*.") {
		suffix := strings.TrimPrefix(pattern, "*.")
		return host == suffix || strings.HasSuffix(host, "."+suffix)
	}
	return host == pattern
}
