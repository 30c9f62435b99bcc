package model

import (
	"nfpanel/nfp/common/ttime"
)

// AuditLog 面板侧的变更流水：谁在什么时候对设备做了什么
type AuditLog struct {
	Id             int64             `gorm:"column:id" json:"id"`
	UserId         int64             `gorm:"column:user_id" json:"user_id"`
	Action         string            `gorm:"column:action" json:"action"` // create/update/delete/toggle
	Target         string            `gorm:"column:target" json:"target"` // proxy:<id> / rule:<id>
	Detail         string            `gorm:"column:detail" json:"detail"`
	CreateDateTime *ttime.TimeFormat `gorm:"column:create_date_time" json:"create_date_time"`
}

func (AuditLog) TableName() string { return "audit_log" }
