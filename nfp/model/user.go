package model

import (
	"nfpanel/nfp/common/ttime"
)

type User struct {
	Id             int64             `gorm:"column:id" json:"id"`
	Username       string            `gorm:"column:username" json:"username"`
	Password       string            `gorm:"column:password" json:"-"`
	PasswordSha256 string            `gorm:"column:password_sha256" json:"-"`
	Status         string            `gorm:"column:status" json:"status"`
	CreateDateTime *ttime.TimeFormat `gorm:"column:create_date_time" json:"create_date_time"`
	UpdateDateTime *ttime.TimeFormat `gorm:"column:update_date_time" json:"update_date_time"`
}

func (User) TableName() string { return "user" }
