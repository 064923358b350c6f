package cart

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/davidpalacios/shopline-backend/pkg/kv"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
)

// Line is one product entry in the cart. ProductID is the uniqueness key;
// Quantity is always >= 1 for a stored line.
type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ImageURL  string          `json:"image_url,omitempty"`
	Category  string          `json:"category,omitempty"`
	Quantity  int             `json:"quantity"`
}

// Manager owns one device's cart. Mutations update the in-memory lines first
// and then write the whole cart through to the key-value store; a failed write
// is logged and the in-memory state stays authoritative for the process.
type Manager struct {
	mu    sync.Mutex
	lines []Line

	store kv.Store
	key   string
	logg  *logger.Logger
}

// NewManager builds a cart manager for the given storage key and rehydrates
// the last persisted snapshot. Read or parse failures start an empty cart.
func NewManager(ctx context.Context, store kv.Store, key string, logg *logger.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("kv store is required")
	}
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("storage key is required")
	}

	m := &Manager{
		store: store,
		key:   key,
		logg:  logg,
	}
	m.rehydrate(ctx)
	return m, nil
}

func (m *Manager) rehydrate(ctx context.Context) {
	raw, err := m.store.Get(ctx, m.key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			m.warn(ctx, "cart rehydration read failed, starting empty", err)
		}
		return
	}

	var lines []Line
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		m.warn(ctx, "cart rehydration parse failed, starting empty", err)
		return
	}

	kept := lines[:0]
	for _, line := range lines {
		if line.ProductID == "" || line.Quantity < 1 {
			continue
		}
		kept = append(kept, line)
	}
	m.lines = kept
}

// AddItem merges the line into the cart. A line with the same ProductID adds
// the quantities together and keeps the existing display fields; a new
// ProductID appends in insertion order. Lines without a product ID or with a
// quantity below one are ignored.
func (m *Manager) AddItem(ctx context.Context, line Line) {
	if line.ProductID == "" || line.Quantity < 1 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.lines {
		if m.lines[i].ProductID == line.ProductID {
			m.lines[i].Quantity += line.Quantity
			m.persistLocked(ctx)
			return
		}
	}

	m.lines = append(m.lines, line)
	m.persistLocked(ctx)
}

// RemoveItem deletes the matching line. Removing an absent product is a no-op.
func (m *Manager) RemoveItem(ctx context.Context, productID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.lines {
		if m.lines[i].ProductID == productID {
			m.lines = append(m.lines[:i], m.lines[i+1:]...)
			m.persistLocked(ctx)
			return
		}
	}
}

// UpdateQuantity replaces the quantity of the matching line. A quantity below
// one removes the line entirely; an absent product is silently ignored.
func (m *Manager) UpdateQuantity(ctx context.Context, productID string, quantity int) {
	if quantity < 1 {
		m.RemoveItem(ctx, productID)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.lines {
		if m.lines[i].ProductID == productID {
			m.lines[i].Quantity = quantity
			m.persistLocked(ctx)
			return
		}
	}
}

// Clear empties the cart and removes the persisted snapshot.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lines = nil
	if err := m.store.Del(ctx, m.key); err != nil {
		m.warn(ctx, "cart clear persist failed", err)
	}
}

// Snapshot returns a point-in-time copy of the cart in insertion order.
// Mutating the returned slice does not affect the manager.
func (m *Manager) Snapshot() []Line {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Line, len(m.lines))
	copy(out, m.lines)
	return out
}

// persistLocked serializes the whole cart under the fixed key. Callers hold mu.
func (m *Manager) persistLocked(ctx context.Context) {
	payload, err := json.Marshal(m.lines)
	if err != nil {
		m.warn(ctx, "cart serialization failed", err)
		return
	}
	if err := m.store.Set(ctx, m.key, string(payload)); err != nil {
		m.warn(ctx, "cart persist failed", err)
	}
}

func (m *Manager) warn(ctx context.Context, msg string, err error) {
	if m.logg == nil {
		return
	}
	m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), msg)
}
