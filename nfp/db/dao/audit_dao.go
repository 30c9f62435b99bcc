package dao

import (
	"gorm.io/gorm"

	"nfpanel/nfp/common/logx"
	"nfpanel/nfp/model"
)

var auditLog = logx.New(logx.WithPrefix("audit.dao"))

// RecordAudit 审计失败只记日志不拦业务
func RecordAudit(db *gorm.DB, userId int64, action, target, detail string) {
	rec := model.AuditLog{
		UserId: userId,
		Action: action,
		Target: target,
		Detail: detail,
	}
	if err := db.Create(&rec).Error; err != nil {
		auditLog.Errorf("record %s %s: %v", action, target, err)
	}
}

func ListAudit(db *gorm.DB, page, size int) (list []model.AuditLog, total int64, err error) {
	q := db.Model(&model.AuditLog{})
	if err = q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err = q.Order("id DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&list).Error
	return list, total, err
}
