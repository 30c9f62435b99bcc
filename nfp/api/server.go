package api

import (
	"errors"
	"net/http"

	"nfpanel/nfp/app"
	"nfpanel/nfp/client"
	"nfpanel/nfp/common/bruteguard"
	"nfpanel/nfp/common/logx"
	"nfpanel/nfp/core/assemble"

	"github.com/gin-gonic/gin"
)

type Server struct {
	Guard *bruteguard.Guard
	App   *app.App
}

func New(a *app.App) *Server {
	return &Server{App: a, Guard: a.Guard}
}

var log = logx.New(logx.WithPrefix("api"))

// 设备侧错误 -> 面板响应。会话失效单独给 code，前端据此跳转重登；
// 结构化错误按设备状态码透传，传输层失败一律 502。
func answerApplianceErr(c *gin.Context, err error) {
	var he *client.HTTPError
	var ne *client.NetworkError
	var ve *assemble.ValidationError
	switch {
	case errors.Is(err, client.ErrAuthExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "appliance session expired", "code": "auth_expired"})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "field": ve.Field})
	case errors.As(err, &he):
		status := he.Status
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": he.Error()})
	case errors.As(err, &ne):
		c.JSON(http.StatusBadGateway, gin.H{"error": ne.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
