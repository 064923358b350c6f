package product

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/davidpalacios/shopline-backend/pkg/db/models"
	"github.com/davidpalacios/shopline-backend/pkg/pagination"
)

// ListFilters describe the supported filter knobs for the browse endpoint.
type ListFilters struct {
	Category   string `json:"category,omitempty"`
	Query      string `json:"q,omitempty"`
	OnlyActive bool   `json:"only_active,omitempty"`
}

// ListInput captures the inputs needed to paginate/filter the catalog.
type ListInput struct {
	Filters    ListFilters
	Pagination pagination.Params
}

// Repository wires together product persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Create inserts the product.
func (r *Repository) Create(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// FindByID loads the product.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// Save persists the full product row.
func (r *Repository) Save(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Save(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// Delete removes the product row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Product{}, "id = ?", id).Error
}

// List returns a cursor page of products, newest first.
func (r *Repository) List(ctx context.Context, input ListInput) ([]models.Product, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{})

	if input.Filters.OnlyActive {
		query = query.Where("is_active = ?", true)
	}
	if category := strings.TrimSpace(input.Filters.Category); category != "" {
		query = query.Where("category = ?", category)
	}
	if q := strings.TrimSpace(input.Filters.Query); q != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(q)+"%")
	}

	cursor, err := pagination.ParseCursor(input.Pagination.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var products []models.Product
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(input.Pagination.Limit)).
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}
