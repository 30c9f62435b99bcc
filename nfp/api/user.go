package api

import (
	"net/http"
	"strconv"
	"strings"

	"nfpanel/nfp/common"
	"nfpanel/nfp/db/dao"
	"nfpanel/nfp/model"

	"github.com/gin-gonic/gin"
)

/******** 操作员管理（仅管理员） ********/

// GET /api/user?page=&size=
func (s *Server) listUser(c *gin.Context) {
	page, size := common.GetPage(c)
	var (
		list  []model.User
		total int64
	)
	g := s.App.DB.GormDataSource
	if err := g.Model(&model.User{}).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := g.Order("id ASC").
		Offset((page - 1) * size).Limit(size).
		Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list, "total": total, "page": page})
}

// POST /api/user  {username,password}
func (s *Server) createUser(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(req.Username)
	if name == "" || len(req.Password) < 6 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username required, password at least 6 characters"})
		return
	}
	u := model.User{
		Username:       name,
		Password:       req.Password,
		PasswordSha256: common.HashUP(req.Password),
		Status:         "enabled",
	}
	if err := s.App.DB.GormDataSource.Create(&u).Error; err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") ||
			strings.Contains(strings.ToLower(err.Error()), "duplicate") {
			c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	uid, _ := common.GetAuth(c)
	dao.RecordAudit(s.App.DB.GormDataSource, uid, "user.create", name, "")
	c.JSON(http.StatusOK, gin.H{"id": u.Id})
}

// PUT /api/user/:id  指针字段：nil=不改
func (s *Server) updateUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad id"})
		return
	}
	var req struct {
		Password *string `json:"password"`
		Status   *string `json:"status"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updates := map[string]any{}
	if req.Password != nil {
		if len(*req.Password) < 6 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "password at least 6 characters"})
			return
		}
		updates["password"] = *req.Password
		updates["password_sha256"] = common.HashUP(*req.Password)
	}
	if req.Status != nil {
		st := strings.ToLower(strings.TrimSpace(*req.Status))
		if st != "enabled" && st != "disabled" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be enabled or disabled"})
			return
		}
		// 管理员账号不许停用
		if st == "disabled" && common.IsAdminID(s.App.Cfg.Admin.AdminIDs, id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot disable admin account"})
			return
		}
		updates["status"] = st
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}
	tx := s.App.DB.GormDataSource.Model(&model.User{}).Where("id = ?", id).Updates(updates)
	if tx.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": tx.Error.Error()})
		return
	}
	if tx.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	uid, _ := common.GetAuth(c)
	dao.RecordAudit(s.App.DB.GormDataSource, uid, "user.update", strconv.FormatInt(id, 10), "")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DELETE /api/user/:id
func (s *Server) deleteUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad id"})
		return
	}
	if common.IsAdminID(s.App.Cfg.Admin.AdminIDs, id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete admin account"})
		return
	}
	tx := s.App.DB.GormDataSource.Where("id = ?", id).Delete(&model.User{})
	if tx.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": tx.Error.Error()})
		return
	}
	if tx.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	uid, _ := common.GetAuth(c)
	dao.RecordAudit(s.App.DB.GormDataSource, uid, "user.delete", strconv.FormatInt(id, 10), "")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
