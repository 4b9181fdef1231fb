package data

import (
	"fmt"

	"smartcs/internal/conf"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 创建数据库连接
func NewDB(c *conf.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(c.Source), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(c.MaxOpenConns)
	sqlDB.SetMaxIdleConns(c.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(c.ConnMaxLifetime)

	// 迁移网关相关的表
	if err := db.AutoMigrate(
		&ProviderPO{},
		&ModelPO{},
		&ModelGroupPO{},
		&CallRecordPO{},
		&QuotaPO{},
		&ModelPerformancePO{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return db, nil
}
