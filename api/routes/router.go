package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/davidpalacios/shopline-backend/api/controllers"
	"github.com/davidpalacios/shopline-backend/api/middleware"
	authsvc "github.com/davidpalacios/shopline-backend/internal/auth"
	"github.com/davidpalacios/shopline-backend/internal/cart"
	mediasvc "github.com/davidpalacios/shopline-backend/internal/media"
	ordersvc "github.com/davidpalacios/shopline-backend/internal/orders"
	productsvc "github.com/davidpalacios/shopline-backend/internal/products"
	"github.com/davidpalacios/shopline-backend/internal/roles"
	usersvc "github.com/davidpalacios/shopline-backend/internal/users"
	"github.com/davidpalacios/shopline-backend/pkg/config"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
	"github.com/davidpalacios/shopline-backend/pkg/metrics"
)

// Deps carries everything the router mounts. Optional entries may be nil;
// their endpoints then answer with an internal error instead of panicking.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	HTTPMetrics *metrics.HTTPMetrics

	// MetricsHandler serves the Prometheus scrape endpoint.
	MetricsHandler http.Handler

	// HealthPingers are checked by /health/ready, keyed by dependency name.
	HealthPingers map[string]controllers.Pinger

	SessionChecker middleware.AccessSessionChecker

	AuthService    authsvc.Service
	UserService    usersvc.Service
	ProductService productsvc.Service
	OrderService   ordersvc.Service
	MediaService   *mediasvc.Service
	CartRegistry   *cart.Registry
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.HealthPingers))
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Device(logg))
			r.Post("/sign-in", controllers.AuthSignIn(deps.AuthService, logg))
			r.Post("/sign-up", controllers.AuthSignUp(deps.AuthService, logg))
			r.Get("/session", controllers.AuthSession(deps.AuthService, logg))
		})
		r.Post("/refresh", controllers.AuthRefresh(deps.AuthService, logg))
		r.With(
			middleware.Auth(cfg.JWT, deps.SessionChecker, logg),
			middleware.Device(logg),
		).Post("/sign-out", controllers.AuthSignOut(deps.AuthService, logg))
	})

	// Public catalog reads.
	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", controllers.ProductsList(deps.ProductService, logg))
		r.Get("/{productID}", controllers.ProductGet(deps.ProductService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.SessionChecker, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.Device(logg))
			r.Get("/", controllers.CartGet(deps.CartRegistry, logg))
			r.Delete("/", controllers.CartClear(deps.CartRegistry, logg))
			r.Post("/items", controllers.CartAddItem(deps.CartRegistry, logg))
			r.Put("/items/{productID}", controllers.CartUpdateQuantity(deps.CartRegistry, logg))
			r.Delete("/items/{productID}", controllers.CartRemoveItem(deps.CartRegistry, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.Device(logg)).Post("/checkout", controllers.OrderCheckout(deps.OrderService, logg))
			r.Get("/", controllers.OrdersList(deps.OrderService, logg))
			r.Get("/{orderID}", controllers.OrderGet(deps.OrderService, logg))
		})

		r.Route("/me", func(r chi.Router) {
			r.Get("/", controllers.ProfileGet(deps.UserService, logg))
			r.Patch("/", controllers.ProfileUpdate(deps.UserService, logg))
		})

		// Catalog and media management is admin-only.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(roles.RoleAdmin, logg))
			r.Post("/products", controllers.ProductCreate(deps.ProductService, logg))
			r.Patch("/products/{productID}", controllers.ProductUpdate(deps.ProductService, logg))
			r.Delete("/products/{productID}", controllers.ProductDelete(deps.ProductService, logg))
			r.Post("/media", controllers.MediaUpload(deps.MediaService, logg))
		})
	})

	return r
}
