package api

import (
	"net/http"

	"nfpanel/nfp/common"
	"nfpanel/nfp/db/dao"

	"github.com/gin-gonic/gin"
)

/******** 启用规则缓存 ********/

// GET /api/rule  缓存快照，不打设备
func (s *Server) listRule(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": s.App.Rules.Snapshot()})
}

// POST /api/rule/refresh  强制整体替换；慢的旧结果不会盖快的新结果
func (s *Server) refreshRule(c *gin.Context) {
	rules, err := s.App.RefreshRules(c.Request.Context())
	if err != nil {
		answerApplianceErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rules})
}

/******** 审计 ********/

// GET /api/audit?page=&size=
func (s *Server) listAudit(c *gin.Context) {
	page, size := common.GetPage(c)
	list, total, err := dao.ListAudit(s.App.DB.GormDataSource, page, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list, "total": total, "page": page})
}
