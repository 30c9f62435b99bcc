package api

import (
	"net/http"
	"strconv"

	"nfpanel/nfp/common"
	"nfpanel/nfp/db/dao"

	"github.com/gin-gonic/gin"
)

/******** 转发实体：列表 / 详情 / 删除 / 启停 ********/

// GET /api/entity?page=&size=
func (s *Server) listEntity(c *gin.Context) {
	page, size := common.GetPage(c)
	pg, err := s.App.Appliance.ListProxies(c.Request.Context(), page, size)
	if err != nil {
		answerApplianceErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":       pg.Items,
		"page":        pg.Page,
		"total":       pg.Total,
		"total_pages": pg.TotalPages,
	})
}

// GET /api/entity/:id
func (s *Server) getEntity(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad id"})
		return
	}
	cfg, err := s.App.Appliance.GetProxy(c.Request.Context(), id)
	if err != nil {
		answerApplianceErr(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// DELETE /api/entity/:id
func (s *Server) deleteEntity(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad id"})
		return
	}
	if err := s.App.Appliance.DeleteProxy(c.Request.Context(), id); err != nil {
		answerApplianceErr(c, err)
		return
	}
	uid, _ := common.GetAuth(c)
	dao.RecordAudit(s.App.DB.GormDataSource, uid, "entity.delete", strconv.FormatInt(id, 10), "")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /api/entity/:id/enable  /  /api/entity/:id/disable
func (s *Server) setEntityEnabled(enable bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad id"})
			return
		}
		action := "entity.disable"
		call := s.App.Appliance.DisableProxy
		if enable {
			action = "entity.enable"
			call = s.App.Appliance.EnableProxy
		}
		if err := call(c.Request.Context(), id); err != nil {
			answerApplianceErr(c, err)
			return
		}
		uid, _ := common.GetAuth(c)
		dao.RecordAudit(s.App.DB.GormDataSource, uid, action, strconv.FormatInt(id, 10), "")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
