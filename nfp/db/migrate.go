package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"nfpanel/nfp/common"
)

// 仅用原生 SQL 完成初始化（建表/索引/触发器/种子数据）
// driver: "mysql" | "sqlite"
func MigrateSQL(g *gorm.DB, driver string) error {
	switch strings.ToLower(driver) {
	case "mysql":
		if err := createTablesMySQL(g); err != nil {
			return fmt.Errorf("mysql create tables: %w", err)
		}
		if err := seedAdmin(g); err != nil {
			return fmt.Errorf("mysql seed admin: %w", err)
		}
		return nil

	case "sqlite":
		if err := createTablesSQLite(g); err != nil {
			return fmt.Errorf("sqlite create tables: %w", err)
		}
		if err := ensureSQLiteTimeTriggers(g); err != nil {
			return fmt.Errorf("sqlite time triggers: %w", err)
		}
		if err := seedAdmin(g); err != nil {
			return fmt.Errorf("sqlite seed admin: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unsupported driver: %s", driver)
	}
}

func seedAdmin(g *gorm.DB) error {
	var cnt int64
	if err := g.Raw(`SELECT COUNT(*) FROM user`).Scan(&cnt).Error; err != nil {
		return err
	}
	if cnt > 0 {
		return nil
	}
	pass := "nfpanel"
	hash := common.HashUP(pass)
	return g.Exec(`INSERT INTO user (username,password,password_sha256,status) VALUES (?,?,?,'enabled')`,
		"admin", pass, hash).Error
}

/* ------------------------ SQLite：CREATE TABLE + 触发器（时间维护） ------------------------ */

func createTablesSQLite(g *gorm.DB) error {
	stmts := []string{
		// user（时间列 TEXT，用触发器写 localtime）
		`CREATE TABLE IF NOT EXISTS user (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			password_sha256 TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'enabled',
			create_date_time TEXT,
			update_date_time TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_user_status ON user(status);`,

		// audit_log
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			action TEXT NOT NULL,
			target TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			create_date_time TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_user   ON audit_log(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_target ON audit_log(target);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_time   ON audit_log(create_date_time);`,
	}
	for _, sql := range stmts {
		if err := g.Exec(sql).Error; err != nil {
			return err
		}
	}
	return nil
}

// ensureSQLiteTimeTriggers 自动给包含 create_date_time / update_date_time 的表打触发器
func ensureSQLiteTimeTriggers(g *gorm.DB) error {
	type Tbl struct{ Name string }
	var tbls []Tbl
	if err := g.Raw(`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`).Scan(&tbls).Error; err != nil {
		return err
	}

	for _, t := range tbls {
		type Col struct {
			Name string `gorm:"column:name"`
			PK   int    `gorm:"column:pk"`
		}
		var cols []Col
		if err := g.Raw(fmt.Sprintf(`PRAGMA table_info(%q);`, t.Name)).Scan(&cols).Error; err != nil {
			return err
		}

		hasCreate, hasUpdate := false, false
		pkCol := ""
		for _, c := range cols {
			switch strings.ToLower(c.Name) {
			case "create_date_time":
				hasCreate = true
			case "update_date_time":
				hasUpdate = true
			}
			if c.PK > 0 && pkCol == "" {
				pkCol = c.Name
			}
		}
		if (!hasCreate && !hasUpdate) || pkCol == "" {
			continue
		}

		if hasCreate {
			sql := fmt.Sprintf(`
CREATE TRIGGER IF NOT EXISTS trg_%[1]s_create
AFTER INSERT ON %[1]q
FOR EACH ROW WHEN NEW.create_date_time IS NULL
BEGIN
	UPDATE %[1]q SET create_date_time = datetime('now','localtime') WHERE %[2]q = NEW.%[2]q;
END;`, t.Name, pkCol)
			if err := g.Exec(sql).Error; err != nil {
				return err
			}
		}
		if hasUpdate {
			sql := fmt.Sprintf(`
CREATE TRIGGER IF NOT EXISTS trg_%[1]s_update
AFTER UPDATE ON %[1]q
FOR EACH ROW
BEGIN
	UPDATE %[1]q SET update_date_time = datetime('now','localtime') WHERE %[2]q = NEW.%[2]q;
END;`, t.Name, pkCol)
			if err := g.Exec(sql).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

/* ------------------------ MySQL ------------------------ */

func createTablesMySQL(g *gorm.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS user (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			username VARCHAR(64) NOT NULL UNIQUE,
			password VARCHAR(128) NOT NULL,
			password_sha256 VARCHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'enabled',
			create_date_time DATETIME DEFAULT CURRENT_TIMESTAMP,
			update_date_time DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_user_status (status)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

		`CREATE TABLE IF NOT EXISTS audit_log (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			user_id BIGINT NOT NULL,
			action VARCHAR(32) NOT NULL,
			target VARCHAR(128) NOT NULL DEFAULT '',
			detail TEXT,
			create_date_time DATETIME DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_audit_user (user_id),
			INDEX idx_audit_action (action),
			INDEX idx_audit_target (target),
			INDEX idx_audit_time (create_date_time)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
	}
	for _, sql := range stmts {
		if err := g.Exec(sql).Error; err != nil {
			return err
		}
	}
	return nil
}
