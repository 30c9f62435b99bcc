package api

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"nfpanel/nfp/common"

	"github.com/gin-gonic/gin"
)

/********** Router **********/
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	// 中间件：Recovery + 日志
	r.Use(gin.Recovery(), gin.Logger())

	/********** 业务 API **********/
	api := r.Group("/api")
	{
		api.POST("/login", s.login)
	}

	auth := api.Group("/")
	auth.Use(s.AuthRequired())
	{
		auth.GET("/me", s.me)
		auth.PUT("/me/password", s.changePassword)

		auth.GET("/entity", s.listEntity)
		auth.GET("/entity/:id", s.getEntity)
		auth.DELETE("/entity/:id", s.deleteEntity)
		auth.POST("/entity/:id/enable", s.setEntityEnabled(true))
		auth.POST("/entity/:id/disable", s.setEntityEnabled(false))

		auth.POST("/form", s.createForm)
		auth.POST("/form/from/:id", s.createFormFrom)
		auth.GET("/form/:fid", s.getForm)
		auth.PUT("/form/:fid", s.updateForm)
		auth.DELETE("/form/:fid", s.dropForm)
		auth.POST("/form/:fid/row", s.addFormRow)
		auth.PUT("/form/:fid/row/:idx", s.updateFormRow)
		auth.DELETE("/form/:fid/row/:idx", s.removeFormRow)
		auth.GET("/form/:fid/rule/available", s.listFormRuleAvailable)
		auth.POST("/form/:fid/rule", s.addFormRule)
		auth.DELETE("/form/:fid/rule/:rule_id", s.removeFormRule)
		auth.POST("/form/:fid/submit", s.submitForm)

		auth.GET("/rule", s.listRule)
		auth.POST("/rule/refresh", s.refreshRule)
	}

	admin := auth.Group("/")
	admin.Use(AdminOnly())
	{
		admin.GET("/user", s.listUser)
		admin.POST("/user", s.createUser)
		admin.PUT("/user/:id", s.updateUser)
		admin.DELETE("/user/:id", s.deleteUser)

		admin.GET("/audit", s.listAudit)
	}

	// WebSocket 走查询串鉴权，不挂 AuthRequired
	r.GET("/ws/validity", s.validityWS)

	/********** 前端静态资源（Vue dist） **********/
	base := distBase()

	r.Static("/assets", filepath.Join(base, "assets"))
	r.StaticFile("/favicon.ico", filepath.Join(base, "favicon.ico"))
	r.StaticFile("/robots.txt", filepath.Join(base, "robots.txt"))

	// 其余非 /api/** 的路径全部回退到 index.html（支持前端路由）
	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") || c.Request.URL.Path == "/api" || strings.HasPrefix(c.Request.URL.Path, "/ws/") || c.Request.URL.Path == "/ws" {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found", "time": time.Now().UnixMilli()})
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead:
			c.Header("Cache-Control", "no-cache")
			c.File(filepath.Join(base, "index.html"))
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "not found", "time": time.Now().UnixMilli()})
		}
	})

	return r
}

func distBase() string {
	if common.IsDesktop() {
		return "./html"
	}
	return "/var/html/nfpanel"
}
