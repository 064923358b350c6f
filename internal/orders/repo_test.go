package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/davidpalacios/shopline-backend/pkg/db/models"
	"github.com/davidpalacios/shopline-backend/pkg/enums"
	"github.com/davidpalacios/shopline-backend/pkg/pagination"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Order{}, &models.OrderLineItem{}))
	return db
}

func newOrder(userID uuid.UUID, lineCount int) *models.Order {
	order := &models.Order{
		ID:       uuid.New(),
		UserID:   userID,
		DeviceID: "device-1",
		Status:   enums.OrderStatusPending,
		Subtotal: decimal.NewFromInt(10),
		Total:    decimal.NewFromInt(10),
	}
	for i := 0; i < lineCount; i++ {
		order.Lines = append(order.Lines, models.OrderLineItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			Name:      "item",
			UnitPrice: decimal.NewFromInt(5),
			Qty:       1,
			Total:     decimal.NewFromInt(5),
		})
		order.ItemCount++
	}
	return order
}

func TestRepositoryCreateAndFindByID(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupOrdersTestDB(t))

	created, err := repo.Create(ctx, newOrder(uuid.New(), 2))
	require.NoError(t, err)

	found, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Len(t, found.Lines, 2)
	assert.True(t, found.Subtotal.Equal(decimal.NewFromInt(10)))
}

func TestRepositoryFindByIDNotFound(t *testing.T) {
	repo := NewRepository(setupOrdersTestDB(t))

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryListByUserCursor(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupOrdersTestDB(t))
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := repo.Create(ctx, newOrder(userID, 1))
		require.NoError(t, err)
		// sqlite stores created_at at millisecond precision; keep rows distinct.
		time.Sleep(time.Millisecond)
	}
	_, err := repo.Create(ctx, newOrder(uuid.New(), 1))
	require.NoError(t, err)

	page, err := repo.ListByUser(ctx, userID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	// One buffer row past the limit signals another page.
	require.Len(t, page, 3)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt) || page[0].ID.String() > page[1].ID.String())

	cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: page[1].CreatedAt, ID: page[1].ID})
	rest, err := repo.ListByUser(ctx, userID, pagination.Params{Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.NotEqual(t, page[0].ID, rest[0].ID)
	assert.NotEqual(t, page[1].ID, rest[0].ID)
	assert.Equal(t, userID, rest[0].UserID)
}

func TestRepositoryUpdateStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupOrdersTestDB(t))

	created, err := repo.Create(ctx, newOrder(uuid.New(), 1))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(ctx, created.ID, string(enums.OrderStatusConfirmed)))

	found, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, found.Status)
}
