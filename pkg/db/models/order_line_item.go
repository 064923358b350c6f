package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLineItem captures the snapshot of each item within an order.
type OrderLineItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID *uuid.UUID      `gorm:"column:product_id;type:uuid"`
	Name      string          `gorm:"column:name;not null"`
	ImageURL  *string         `gorm:"column:image_url"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Qty       int             `gorm:"column:qty;not null"`
	Total     decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
