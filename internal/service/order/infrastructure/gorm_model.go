// internal/service/order/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderModel 对应数据库中的 orders 表
type OrderModel struct {
	ID              string          `gorm:"type:char(36);primaryKey"`
	UserID          string          `gorm:"type:varchar(64);index"`
	Status          string          `gorm:"type:varchar(16);index"`
	Currency        string          `gorm:"type:char(3)"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(12,2)"`
	TrackingNumber  string          `gorm:"type:varchar(64)"`
	TrackingCarrier string          `gorm:"type:varchar(64)"`
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	ReturnStatus    string `gorm:"type:varchar(16)"`
	ReturnReason    string `gorm:"type:varchar(255)"`
	ReturnNote      string `gorm:"type:varchar(255)"`
	ReturnRequested *time.Time
	ReturnResolved  *time.Time
	RefundAmount    *decimal.Decimal `gorm:"type:decimal(12,2)"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Items []OrderItemModel `gorm:"foreignKey:OrderID"`
}

func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel 对应数据库中的 order_items 表
type OrderItemModel struct {
	ID          uint            `gorm:"primaryKey;autoIncrement"`
	OrderID     string          `gorm:"type:char(36);index"`
	ProductID   string          `gorm:"type:varchar(64)"`
	VariantSKU  string          `gorm:"type:varchar(64)"`
	FlashSaleID string          `gorm:"type:varchar(64)"`
	Quantity    int             `gorm:"not null"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2)"`
}

func (OrderItemModel) TableName() string {
	return "order_items"
}

// OutboxModel 对应数据库中的 order_outbox 表
type OutboxModel struct {
	ID          string `gorm:"type:char(36);primaryKey"`
	AggregateID string `gorm:"type:char(36);index"`
	Type        string `gorm:"type:varchar(64)"`
	Payload     []byte `gorm:"type:json"`
	Status      string `gorm:"type:varchar(16);index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (OutboxModel) TableName() string {
	return "order_outbox"
}

// FlashSaleModel 对应数据库中的 flash_sales 表
type FlashSaleModel struct {
	ID                string          `gorm:"type:char(36);primaryKey"`
	ProductID         string          `gorm:"type:varchar(64);index"`
	Price             decimal.Decimal `gorm:"type:decimal(12,2)"`
	OriginalPrice     decimal.Decimal `gorm:"type:decimal(12,2)"`
	Currency          string          `gorm:"type:char(3)"`
	StartTime         time.Time
	EndTime           time.Time
	TotalQuantity     int
	RemainingQuantity int
	Status            string `gorm:"type:varchar(16);index"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (FlashSaleModel) TableName() string {
	return "flash_sales"
}
