package dao

import (
	"errors"

	"gorm.io/gorm"

	"nfpanel/nfp/common"
	"nfpanel/nfp/model"
)

func LoadUserInfo(db *gorm.DB, userId int64) (*model.User, error) {
	var m model.User
	err := db.
		Model(&model.User{}).
		Where("id = ?", userId).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func LoadUserByUsername(db *gorm.DB, username string) (*model.User, error) {
	var m model.User
	err := db.
		Model(&model.User{}).
		Where("username = ?", username).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

var (
	// ErrBadCredentials 账号不存在或口令不对，对外不区分
	ErrBadCredentials = errors.New("bad credentials")
	// ErrUserDisabled 口令对但账号已停用
	ErrUserDisabled = errors.New("user disabled")
)

// Authenticate 校验口令；明文/哈希都认
func Authenticate(db *gorm.DB, username, password string) (*model.User, error) {
	u, err := LoadUserByUsername(db, username)
	if err != nil {
		return nil, ErrBadCredentials
	}
	if !common.PasswordOK(u.Password, u.PasswordSha256, password) {
		return nil, ErrBadCredentials
	}
	if !common.StatusOK(u.Status) {
		return u, ErrUserDisabled
	}
	return u, nil
}

// ResetPassword 明文与哈希同时落库（旧运维脚本仍读明文列）
func ResetPassword(db *gorm.DB, userId int64, newPass string) error {
	return db.Model(&model.User{}).
		Where("id = ?", userId).
		Updates(map[string]any{
			"password":        newPass,
			"password_sha256": common.HashUP(newPass),
		}).Error
}
