package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidpalacios/shopline-backend/pkg/db/models"
)

// OrderDTO is the order payload returned to clients.
type OrderDTO struct {
	ID        uuid.UUID          `json:"id"`
	UserID    uuid.UUID          `json:"user_id"`
	DeviceID  string             `json:"device_id"`
	Status    string             `json:"status"`
	ItemCount int                `json:"item_count"`
	Subtotal  decimal.Decimal    `json:"subtotal"`
	Total     decimal.Decimal    `json:"total"`
	Lines     []OrderLineItemDTO `json:"lines"`
	CreatedAt time.Time          `json:"created_at"`
}

// OrderLineItemDTO is the snapshot of one purchased item.
type OrderLineItemDTO struct {
	ID        uuid.UUID       `json:"id"`
	ProductID *uuid.UUID      `json:"product_id,omitempty"`
	Name      string          `json:"name"`
	ImageURL  *string         `json:"image_url,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Qty       int             `json:"qty"`
	Total     decimal.Decimal `json:"total"`
}

// OrderListResult bundles an order page with its next cursor.
type OrderListResult struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor *string    `json:"next_cursor,omitempty"`
}

func FromModel(o *models.Order) *OrderDTO {
	if o == nil {
		return nil
	}
	dto := &OrderDTO{
		ID:        o.ID,
		UserID:    o.UserID,
		DeviceID:  o.DeviceID,
		Status:    string(o.Status),
		ItemCount: o.ItemCount,
		Subtotal:  o.Subtotal,
		Total:     o.Total,
		Lines:     make([]OrderLineItemDTO, 0, len(o.Lines)),
		CreatedAt: o.CreatedAt,
	}
	for i := range o.Lines {
		line := &o.Lines[i]
		dto.Lines = append(dto.Lines, OrderLineItemDTO{
			ID:        line.ID,
			ProductID: line.ProductID,
			Name:      line.Name,
			ImageURL:  line.ImageURL,
			UnitPrice: line.UnitPrice,
			Qty:       line.Qty,
			Total:     line.Total,
		})
	}
	return dto
}
