package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/davidpalacios/shopline-backend/api/middleware"
	"github.com/davidpalacios/shopline-backend/api/responses"
	"github.com/davidpalacios/shopline-backend/api/validators"
	cartsvc "github.com/davidpalacios/shopline-backend/internal/cart"
	pkgerrors "github.com/davidpalacios/shopline-backend/pkg/errors"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
)

type cartAddItemRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ImageURL  string          `json:"image_url,omitempty" validate:"omitempty,url"`
	Category  string          `json:"category,omitempty"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
}

type cartUpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type cartResponse struct {
	Lines []cartsvc.Line `json:"lines"`
}

func cartManager(r *http.Request, carts *cartsvc.Registry) (*cartsvc.Manager, error) {
	deviceID := middleware.DeviceIDFromContext(r.Context())
	manager, err := carts.Manager(r.Context(), deviceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "resolving cart")
	}
	return manager, nil
}

// CartGet returns the device's current cart snapshot.
func CartGet(carts *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		manager, err := cartManager(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartResponse{Lines: manager.Snapshot()})
	}
}

// CartAddItem merges a line into the device's cart.
func CartAddItem(carts *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		manager, err := cartManager(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body cartAddItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		manager.AddItem(r.Context(), cartsvc.Line{
			ProductID: strings.TrimSpace(body.ProductID),
			Name:      body.Name,
			UnitPrice: body.UnitPrice,
			ImageURL:  body.ImageURL,
			Category:  body.Category,
			Quantity:  body.Quantity,
		})

		responses.WriteSuccess(w, cartResponse{Lines: manager.Snapshot()})
	}
}

// CartUpdateQuantity replaces a line's quantity; zero or less removes it.
func CartUpdateQuantity(carts *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		manager, err := cartManager(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID := strings.TrimSpace(chi.URLParam(r, "productID"))
		if productID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product id is required"))
			return
		}

		var body cartUpdateQuantityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		manager.UpdateQuantity(r.Context(), productID, body.Quantity)
		responses.WriteSuccess(w, cartResponse{Lines: manager.Snapshot()})
	}
}

// CartRemoveItem removes a line from the device's cart.
func CartRemoveItem(carts *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		manager, err := cartManager(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID := strings.TrimSpace(chi.URLParam(r, "productID"))
		if productID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product id is required"))
			return
		}

		manager.RemoveItem(r.Context(), productID)
		responses.WriteSuccess(w, cartResponse{Lines: manager.Snapshot()})
	}
}

// CartClear empties the device's cart.
func CartClear(carts *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		manager, err := cartManager(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		manager.Clear(r.Context())
		responses.WriteSuccess(w, cartResponse{Lines: manager.Snapshot()})
	}
}
