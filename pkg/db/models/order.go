package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidpalacios/shopline-backend/pkg/enums"
)

// Order captures a placed checkout for a single customer.
type Order struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	DeviceID  string            `gorm:"column:device_id;not null"`
	Status    enums.OrderStatus `gorm:"column:status;not null;default:'pending'"`
	ItemCount int               `gorm:"column:item_count;not null"`
	Subtotal  decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Total     decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	Lines     []OrderLineItem   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
