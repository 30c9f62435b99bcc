package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"nfpanel/nfp/common"
	"nfpanel/nfp/db/dao"
	"nfpanel/nfp/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

/******** JWT / Claims ********/

type Claims struct {
	UserId   int64  `json:"uid"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

func (s *Server) makeToken(uid int64, username string, admin bool) (string, error) {
	ttl := s.App.Cfg.Admin.TokenTTL
	if ttl <= 0 {
		ttl = 120
	}
	now := time.Now()
	claims := Claims{
		UserId:   uid,
		Username: username,
		IsAdmin:  admin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttl) * time.Minute)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.App.Cfg.Admin.JWTSecret))
}

func (s *Server) parseToken(tk string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tk, &Claims{}, func(t *jwt.Token) (any, error) {
		return []byte(s.App.Cfg.Admin.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return c, nil
}

/******** Middlewares ********/

// AuthRequired parses Authorization: Bearer <token>
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		tk := strings.TrimSpace(auth[7:])
		claims, err := s.parseToken(tk)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("uid", claims.UserId)
		c.Set("username", claims.Username)
		c.Set("isAdmin", claims.IsAdmin)
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, exists := c.Get("isAdmin")
		if !exists || !v.(bool) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

/******** Handlers: /login /me /me/password ********/

// POST /api/login  {username,password}
func (s *Server) login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u := strings.TrimSpace(req.Username)
	p := strings.TrimSpace(req.Password)
	if u == "" || p == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username/password required"})
		return
	}

	ip := c.ClientIP() // 需要在 gin.Engine 上配置 TrustedProxies
	if s.Guard != nil {
		if ok, retry := s.Guard.Allow(ip, u); !ok {
			// 统一返回 429，不暴露账号存在与否
			if retry > 0 {
				c.Header("Retry-After", fmt.Sprintf("%.0f", retry.Seconds()))
			}
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many attempts, try later"})
			return
		}
	}

	m, err := dao.Authenticate(s.App.DB.GormDataSource, u, p)
	if errors.Is(err, dao.ErrUserDisabled) {
		if s.Guard != nil {
			s.Guard.Success(ip, u)
		} // 账号存在且密码正确 -> 成功尝试，避免继续被封
		c.JSON(http.StatusForbidden, gin.H{"error": "user disabled"})
		return
	}
	if err != nil {
		if s.Guard != nil {
			s.Guard.Fail(ip, u)
		}
		// 模糊错误
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Login failed, please check username and password"})
		return
	}
	admin := common.IsAdminID(s.App.Cfg.Admin.AdminIDs, m.Id)

	tk, err := s.makeToken(m.Id, m.Username, admin)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if s.Guard != nil {
		s.Guard.Success(ip, u)
	}
	c.JSON(http.StatusOK, gin.H{
		"token":    tk,
		"user":     gin.H{"id": m.Id, "username": m.Username},
		"is_admin": admin,
	})
}

// GET /api/me
func (s *Server) me(c *gin.Context) {
	uid, isAdmin := common.GetAuth(c)

	u, err := dao.LoadUserInfo(s.App.DB.GormDataSource, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":               u.Id,
		"username":         u.Username,
		"status":           u.Status,
		"create_date_time": u.CreateDateTime,
		"update_date_time": u.UpdateDateTime,
		"is_admin":         isAdmin,
	})
}

// PUT /api/me/password
// Body: { "old_password": "xxx", "new_password": "yyy", "confirm": "yyy" }
func (s *Server) changePassword(c *gin.Context) {
	type req struct {
		Old string `json:"old_password"`
		New string `json:"new_password"`
		Con string `json:"confirm"`
	}
	var r req
	if err := c.BindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	if len(r.Old) == 0 || len(r.New) == 0 || len(r.Con) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password cannot be empty"})
		return
	}
	if strings.TrimSpace(r.New) != r.New {
		c.JSON(http.StatusBadRequest, gin.H{"error": "New password cannot have leading or trailing spaces"})
		return
	}
	if len(r.New) < 6 || len(r.New) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "New password length must be between 6 and 64 characters"})
		return
	}
	if r.New != r.Con {
		c.JSON(http.StatusBadRequest, gin.H{"error": "New passwords do not match"})
		return
	}

	uid, _ := common.GetAuth(c)

	var u model.User
	if err := s.App.DB.GormDataSource.Select("id, username, password, password_sha256").
		Where("id = ?", uid).
		Take(&u).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read user"})
		return
	}
	if !common.PasswordOK(u.Password, u.PasswordSha256, r.Old) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Incorrect old password"})
		return
	}

	if err := dao.ResetPassword(s.App.DB.GormDataSource, uid, r.New); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
		return
	}
	dao.RecordAudit(s.App.DB.GormDataSource, uid, "password.change", u.Username, "")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
