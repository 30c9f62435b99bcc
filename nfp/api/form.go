package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"nfpanel/nfp/common"
	"nfpanel/nfp/core/assemble"
	"nfpanel/nfp/core/formstate"
	"nfpanel/nfp/core/ruleconflict"
	"nfpanel/nfp/db/dao"
	"nfpanel/nfp/model"

	"github.com/gin-gonic/gin"
)

/******** 表单会话 ********/

// 每次打开新建/编辑表单都建一个独立会话，靠 form_id 引用。
// 取消或提交成功后销毁；长期不动的由注册表按 TTL 回收。

func (s *Server) formOf(c *gin.Context) (*formstate.Session, string, bool) {
	fid := c.Param("fid")
	sess, ok := s.App.Forms.Get(fid)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "form not found or expired"})
		return nil, "", false
	}
	return sess, fid, true
}

func formView(fid string, sess *formstate.Session) gin.H {
	var out gin.H
	sess.With(func() {
		rows := sess.Items.Rows()
		rowViews := make([]gin.H, 0, len(rows))
		for i, r := range rows {
			rowViews = append(rowViews, gin.H{
				"index":       i,
				"address":     r.Address,
				"port":        r.Port,
				"weight":      r.Weight,
				"target_path": r.TargetPath,
				"match_path":  r.MatchPath,
			})
		}
		cons := sess.Items.CheckPathConsistency()
		out = gin.H{
			"form_id": fid,
			"kind":    sess.Entity.Kind,
			"entity": gin.H{
				"id":          sess.Entity.ID,
				"name":        sess.Entity.Name,
				"listen_port": sess.Entity.ListenPort,
				"server_name": sess.Entity.ServerName,
				"timeouts": gin.H{
					"connect": sess.Entity.Connect,
					"send":    sess.Entity.Send,
					"read":    sess.Entity.Read,
				},
				"enabled": sess.Entity.Enabled,
			},
			"rows":         rowViews,
			"path_visible": sess.Items.PathVisible(),
			"rules":        sess.Rules.Refs(),
			"consistency": gin.H{
				"consistent": cons.Consistent,
				"distinct":   cons.Distinct,
			},
			"submitting": sess.Submitting(),
		}
	})
	return out
}

// POST /api/form  {kind}
func (s *Server) createForm(c *gin.Context) {
	var req struct {
		Kind string `json:"kind"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, err := model.ParseKind(req.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fid, sess := s.App.Forms.Create(kind)
	c.JSON(http.StatusOK, formView(fid, sess))
}

// POST /api/form/from/:id  从已有配置回填编辑表单
func (s *Server) createFormFrom(c *gin.Context) {
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
	fid, sess := s.App.Forms.Create(cfg.Kind)
	sess.Hydrate(cfg, func(rid int64) (model.RuleCategory, bool) {
		r, ok := s.App.Rules.Get(rid)
		if !ok {
			return "", false
		}
		return r.Category, true
	})
	c.JSON(http.StatusOK, formView(fid, sess))
}

// GET /api/form/:fid
func (s *Server) getForm(c *gin.Context) {
	sess, fid, ok := s.formOf(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, formView(fid, sess))
}

// DELETE /api/form/:fid  取消编辑
func (s *Server) dropForm(c *gin.Context) {
	fid := c.Param("fid")
	s.App.Forms.Drop(fid)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// PUT /api/form/:fid  顶层字段；指针字段：nil=不改
func (s *Server) updateForm(c *gin.Context) {
	sess, fid, ok := s.formOf(c)
	if !ok {
		return
	}
	var req struct {
		Name           *string `json:"name"`
		ListenPort     *int    `json:"listen_port"`
		ServerName     *string `json:"server_name"`
		ConnectTimeout *int    `json:"proxy_connect_timeout"`
		SendTimeout    *int    `json:"proxy_send_timeout"`
		ReadTimeout    *int    `json:"proxy_read_timeout"`
		Enabled        *bool   `json:"enabled"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess.With(func() {
		if req.Name != nil {
			sess.Entity.Name = *req.Name
		}
		if req.ListenPort != nil {
			sess.Entity.ListenPort = *req.ListenPort
		}
		if req.ServerName != nil {
			sess.Entity.ServerName = *req.ServerName
		}
		if req.ConnectTimeout != nil {
			sess.Entity.Connect = *req.ConnectTimeout
		}
		if req.SendTimeout != nil {
			sess.Entity.Send = *req.SendTimeout
		}
		if req.ReadTimeout != nil {
			sess.Entity.Read = *req.ReadTimeout
		}
		if req.Enabled != nil {
			sess.Entity.Enabled = *req.Enabled
		}
	})
	c.JSON(http.StatusOK, formView(fid, sess))
}

/******** 行操作 ********/

// POST /api/form/:fid/row
func (s *Server) addFormRow(c *gin.Context) {
	sess, fid, ok := s.formOf(c)
	if !ok {
		return
	}
	sess.With(func() {
		sess.Items.AddRow()
		// 新行立刻对齐共享字段
		sess.Items.SyncSharedField()
	})
	c.JSON(http.StatusOK, formView(fid, sess))
}

// PUT /api/form/:fid/row/:idx
func (s *Server) updateFormRow(c *gin.Context) {
	sess, fid, ok := s.formOf(c)
	if !ok {
		return
	}
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad row index"})
		return
	}
	var req struct {
		Address    *string `json:"address"`
		Port       *int    `json:"port"`
		Weight     *int    `json:"weight"`
		TargetPath *string `json:"target_path"`
		MatchPath  *string `json:"match_path"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var rowErr error
	sess.With(func() {
		row, e := sess.Items.Row(idx)
		if e != nil {
			rowErr = e
			return
		}
		if req.Address != nil {
			row.Address = *req.Address
		}
		if req.Port != nil {
			row.Port = *req.Port
		}
		if req.Weight != nil {
			row.Weight = *req.Weight
		}
		if req.TargetPath != nil {
			row.TargetPath = *req.TargetPath
		}
		if req.MatchPath != nil {
			row.MatchPath = *req.MatchPath
			// 只有主行的改动会扩散；非主行的值下一次同步会被覆盖
			if idx == 0 {
				sess.Items.SyncSharedField()
			}
		}
	})
	if rowErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": rowErr.Error()})
		return
	}
	c.JSON(http.StatusOK, formView(fid, sess))
}

// DELETE /api/form/:fid/row/:idx
func (s *Server) removeFormRow(c *gin.Context) {
	sess, fid, ok := s.formOf(c)
	if !ok {
		return
	}
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad row index"})
		return
	}
	var remErr error
	sess.With(func() { remErr = sess.Items.RemoveRow(idx) })
	if remErr != nil {
		if errors.Is(remErr, formstate.ErrMinimumRows) {
			c.JSON(http.StatusConflict, gin.H{"error": remErr.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": remErr.Error()})
		return
	}
	c.JSON(http.StatusOK, formView(fid, sess))
}

/******** 规则选择 ********/

// GET /api/form/:fid/rule/available
func (s *Server) listFormRuleAvailable(c *gin.Context) {
	sess, _, ok := s.formOf(c)
	if !ok {
		return
	}
	all := s.App.Rules.Snapshot()
	var avail []model.Rule
	sess.With(func() { avail = sess.Rules.Available(all) })
	c.JSON(http.StatusOK, gin.H{"items": avail})
}

// POST /api/form/:fid/rule  {rule_id}
func (s *Server) addFormRule(c *gin.Context) {
	sess, fid, ok := s.formOf(c)
	if !ok {
		return
	}
	var req struct {
		RuleID int64 `json:"rule_id"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, found := s.App.Rules.Get(req.RuleID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found or disabled"})
		return
	}
	var addErr error
	sess.With(func() { addErr = sess.Rules.Add(rule.ID, rule.Category) })
	if addErr != nil {
		var ce *ruleconflict.ConflictError
		if errors.As(addErr, &ce) || errors.Is(addErr, ruleconflict.ErrDuplicateRule) {
			c.JSON(http.StatusConflict, gin.H{"error": addErr.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": addErr.Error()})
		return
	}
	c.JSON(http.StatusOK, formView(fid, sess))
}

// DELETE /api/form/:fid/rule/:rule_id
func (s *Server) removeFormRule(c *gin.Context) {
	sess, fid, ok := s.formOf(c)
	if !ok {
		return
	}
	rid, err := strconv.ParseInt(c.Param("rule_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad rule id"})
		return
	}
	var removed bool
	sess.With(func() { removed = sess.Rules.Remove(rid) })
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not selected"})
		return
	}
	c.JSON(http.StatusOK, formView(fid, sess))
}

/******** 提交 ********/

// POST /api/form/:fid/submit
// 同一表单同一时刻只允许一次在途提交；无论结果如何闸门都会放开
func (s *Server) submitForm(c *gin.Context) {
	sess, fid, ok := s.formOf(c)
	if !ok {
		return
	}
	if !sess.BeginSubmit() {
		c.JSON(http.StatusConflict, gin.H{"error": "submit already in flight"})
		return
	}
	defer sess.EndSubmit()

	payload, err := assemble.FromSession(sess)
	if err != nil {
		answerApplianceErr(c, err)
		return
	}
	var entID int64
	sess.With(func() { entID = sess.Entity.ID })

	action := "entity.create"
	if entID > 0 {
		action = "entity.update"
		err = s.App.Appliance.UpdateProxy(c.Request.Context(), entID, payload)
	} else {
		err = s.App.Appliance.CreateProxy(c.Request.Context(), payload)
	}
	if err != nil {
		answerApplianceErr(c, err)
		return
	}

	s.App.Forms.Drop(fid)
	uid, _ := common.GetAuth(c)
	dao.RecordAudit(s.App.DB.GormDataSource, uid, action,
		payload.Name, fmt.Sprintf("kind=%s listen=%d", payload.Kind, payload.ListenPort))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
