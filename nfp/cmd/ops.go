package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"nfpanel/nfp/app"
	"nfpanel/nfp/common"
	"nfpanel/nfp/common/logx"
	"nfpanel/nfp/common/ttime"
	"nfpanel/nfp/model"
)

var ops = logx.New(logx.WithPrefix("ops"))

/********** Admin 密码重置 **********/

// ResetAdmin 把配置里的管理员 ID 的密码重置为 newPass
func ResetAdmin(cfgPath string, newPass string) error {
	if strings.TrimSpace(newPass) == "" {
		return fmt.Errorf("newPass required")
	}
	a, err := app.New(cfgPath)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Stop()

	ids := a.Cfg.Admin.AdminIDs
	if len(ids) == 0 {
		return fmt.Errorf("no admin ids found in config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 同时更新明文与 SHA256（common.HashUP）
	tx := a.DB.GormDataSource.WithContext(ctx).
		Model(&model.User{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"password":        newPass,
			"password_sha256": common.HashUP(newPass),
			"status":          "enabled",
		})

	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		ops.Infof("[reset-admin] no rows updated (ids=%v)", ids)
	} else {
		ops.Infof("[reset-admin] updated %d row(s), ids=%v", tx.RowsAffected, ids)
	}
	return nil
}

/********** 审计日志清理 **********/

// PurgeAudit 删除 days 天之前的审计记录
func PurgeAudit(cfgPath string, daysSpec string) error {
	days, err := strconv.Atoi(strings.TrimSpace(daysSpec))
	if err != nil || days < 0 {
		return fmt.Errorf("bad days: %s", daysSpec)
	}
	a, err := app.New(cfgPath)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -days)
	tx := a.DB.GormDataSource.WithContext(ctx).
		Where("create_date_time < ?", cutoff.Format(ttime.LayoutDateTime)).
		Delete(&model.AuditLog{})
	if tx.Error != nil {
		return tx.Error
	}
	ops.Infof("[purge-audit] deleted %d row(s) before %s", tx.RowsAffected, cutoff.Format(ttime.LayoutDateTime))
	return nil
}
