package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/davidpalacios/shopline-backend/internal/cart"
	"github.com/davidpalacios/shopline-backend/pkg/db/models"
	"github.com/davidpalacios/shopline-backend/pkg/enums"
	pkgerrors "github.com/davidpalacios/shopline-backend/pkg/errors"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
	"github.com/davidpalacios/shopline-backend/pkg/pagination"
)

// Service exposes checkout and order history operations.
type Service interface {
	Checkout(ctx context.Context, userID uuid.UUID, deviceID string) (*OrderDTO, error)
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderListResult, error)
}

// EventPublisher pushes order lifecycle events onto a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo      *Repository
	tx        txRunner
	carts     *cart.Registry
	publisher EventPublisher
	topic     string
	logg      *logger.Logger
}

// NewService builds the order service. The publisher is optional; without one
// checkout still works but no events are emitted.
func NewService(repo *Repository, tx txRunner, carts *cart.Registry, publisher EventPublisher, topic string, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart registry required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		carts:     carts,
		publisher: publisher,
		topic:     topic,
		logg:      logg,
	}, nil
}

type orderCreatedEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	UserID    uuid.UUID `json:"user_id"`
	DeviceID  string    `json:"device_id"`
	ItemCount int       `json:"item_count"`
	Total     string    `json:"total"`
	CreatedAt time.Time `json:"created_at"`
}

// Checkout turns the device's cart into a pending order, clears the cart and
// emits an order.created event. An empty cart is a validation error.
func (s *service) Checkout(ctx context.Context, userID uuid.UUID, deviceID string) (*OrderDTO, error) {
	manager, err := s.carts.Manager(ctx, deviceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "resolving cart")
	}

	lines := manager.Snapshot()
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	order := buildOrder(userID, deviceID, lines)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.repo.WithTx(tx).Create(ctx, order)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persisting order")
	}

	manager.Clear(ctx)
	s.publishCreated(ctx, order)
	return FromModel(order), nil
}

// GetOrder loads one order. Orders belonging to another user read as missing.
func (s *service) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading order")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return FromModel(order), nil
}

// ListOrders returns a cursor page of the user's order history.
func (s *service) ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderListResult, error) {
	rows, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing orders")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	result := &OrderListResult{Orders: make([]OrderDTO, 0, len(rows))}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	for i := range rows {
		result.Orders = append(result.Orders, *FromModel(&rows[i]))
	}
	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		result.NextCursor = &cursor
	}
	return result, nil
}

// buildOrder snapshots cart lines into order rows. Cart product IDs are
// opaque strings; only well-formed UUIDs are kept as catalog references.
func buildOrder(userID uuid.UUID, deviceID string, lines []cart.Line) *models.Order {
	order := &models.Order{
		ID:       uuid.New(),
		UserID:   userID,
		DeviceID: deviceID,
		Status:   enums.OrderStatusPending,
		Subtotal: decimal.Zero,
		Total:    decimal.Zero,
		Lines:    make([]models.OrderLineItem, 0, len(lines)),
	}
	for _, line := range lines {
		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))

		var productID *uuid.UUID
		if parsed, err := uuid.Parse(line.ProductID); err == nil {
			productID = &parsed
		}
		var imageURL *string
		if line.ImageURL != "" {
			url := line.ImageURL
			imageURL = &url
		}

		order.Lines = append(order.Lines, models.OrderLineItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: productID,
			Name:      line.Name,
			ImageURL:  imageURL,
			UnitPrice: line.UnitPrice,
			Qty:       line.Quantity,
			Total:     lineTotal,
		})
		order.ItemCount += line.Quantity
		order.Subtotal = order.Subtotal.Add(lineTotal)
	}
	order.Total = order.Subtotal
	return order
}

// publishCreated emits the event best-effort. The order is already committed,
// so a publish failure is logged and the checkout still succeeds.
func (s *service) publishCreated(ctx context.Context, order *models.Order) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(orderCreatedEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		DeviceID:  order.DeviceID,
		ItemCount: order.ItemCount,
		Total:     order.Total.String(),
		CreatedAt: order.CreatedAt,
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "order_id", order.ID.String()), "encoding order event", err)
		return
	}
	attrs := map[string]string{"event": "order.created"}
	if err := s.publisher.Publish(ctx, s.topic, payload, attrs); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "order_id", order.ID.String()), "publishing order event", err)
	}
}
