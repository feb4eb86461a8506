package db

import (
	"fmt"

	"runquest/internal/config"

	"gorm.io/gorm"
)

// OpenMemory 打开一个已迁移的内存 sqlite，name 不同则互相隔离。供测试与演示使用
func OpenMemory(name string) (*gorm.DB, error) {
	db, err := Open(config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      sqliteDSN(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)),
		LogLevel: "silent",
	})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		Close(db)
		return nil, err
	}
	return db, nil
}
