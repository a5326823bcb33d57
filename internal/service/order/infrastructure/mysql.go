// internal/service/order/infrastructure/mysql.go
package infrastructure

import (
	pkgerrors "github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenDB 建立 MySQL 连接并迁移本服务拥有的表。
func OpenDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to connect to mysql")
	}

	if err := db.AutoMigrate(&OrderModel{}, &OrderItemModel{}, &OutboxModel{}, &FlashSaleModel{}); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to migrate order tables")
	}
	return db, nil
}
