package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davidpalacios/shopline-backend/api/controllers"
	"github.com/davidpalacios/shopline-backend/api/routes"
	"github.com/davidpalacios/shopline-backend/internal/auth"
	"github.com/davidpalacios/shopline-backend/internal/cart"
	"github.com/davidpalacios/shopline-backend/internal/identity"
	"github.com/davidpalacios/shopline-backend/internal/media"
	"github.com/davidpalacios/shopline-backend/internal/orders"
	products "github.com/davidpalacios/shopline-backend/internal/products"
	"github.com/davidpalacios/shopline-backend/internal/roles"
	"github.com/davidpalacios/shopline-backend/internal/session"
	"github.com/davidpalacios/shopline-backend/internal/users"
	authsession "github.com/davidpalacios/shopline-backend/pkg/auth/session"
	"github.com/davidpalacios/shopline-backend/pkg/config"
	"github.com/davidpalacios/shopline-backend/pkg/db"
	"github.com/davidpalacios/shopline-backend/pkg/firebase"
	"github.com/davidpalacios/shopline-backend/pkg/kv"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
	"github.com/davidpalacios/shopline-backend/pkg/metrics"
	"github.com/davidpalacios/shopline-backend/pkg/migrate"
	"github.com/davidpalacios/shopline-backend/pkg/pubsub"
	"github.com/davidpalacios/shopline-backend/pkg/redis"
	"github.com/davidpalacios/shopline-backend/pkg/storage/gcs"
)

// identityProfileSync bridges the users service to whichever identity
// provider is active without the users package importing identity.
type identityProfileSync struct {
	provider identity.Provider
}

func (s identityProfileSync) SyncProfile(ctx context.Context, identityID, displayName, avatarURL string) error {
	return s.provider.SetProfile(ctx, identityID, identity.Profile{
		DisplayName: displayName,
		AvatarURL:   avatarURL,
	})
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := context.Background()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	kvStore, err := kv.NewRedisStore(redisClient)
	if err != nil {
		logg.Error(ctx, "failed to create kv store", err)
		os.Exit(1)
	}

	refreshSessions, err := authsession.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create refresh session manager", err)
		os.Exit(1)
	}

	userRepo := users.NewRepository(dbClient.DB())

	pingers := map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
	}

	var provider identity.Provider
	var roleStore roles.Store
	if cfg.FeatureFlags.UseLocalIdentity {
		local, err := identity.NewLocalProvider(userRepo, cfg.Password)
		if err != nil {
			logg.Error(ctx, "failed to create local identity provider", err)
			os.Exit(1)
		}
		kvRoles, err := roles.NewKVStore(kvStore)
		if err != nil {
			logg.Error(ctx, "failed to create role store", err)
			os.Exit(1)
		}
		provider, roleStore = local, kvRoles
	} else {
		fbClient, err := firebase.NewClient(ctx, cfg.GCP, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap firebase", err)
			os.Exit(1)
		}
		defer func() {
			if err := fbClient.Close(); err != nil {
				logg.Error(ctx, "error closing firebase", err)
			}
		}()
		fbProvider, err := identity.NewFirebaseProvider(fbClient, cfg.Firebase, logg)
		if err != nil {
			logg.Error(ctx, "failed to create firebase identity provider", err)
			os.Exit(1)
		}
		fsRoles, err := roles.NewFirestoreStore(fbClient.Firestore(), cfg.Firebase.UsersCollection)
		if err != nil {
			logg.Error(ctx, "failed to create role store", err)
			os.Exit(1)
		}
		provider, roleStore = fbProvider, fsRoles
	}

	sessionRegistry, err := session.NewRegistry(provider, roleStore, kvStore, logg)
	if err != nil {
		logg.Error(ctx, "failed to create session registry", err)
		os.Exit(1)
	}

	cartRegistry, err := cart.NewRegistry(kvStore, logg)
	if err != nil {
		logg.Error(ctx, "failed to create cart registry", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(sessionRegistry, refreshSessions, userRepo, cfg.JWT, logg)
	if err != nil {
		logg.Error(ctx, "failed to create auth service", err)
		os.Exit(1)
	}

	userService, err := users.NewService(userRepo, identityProfileSync{provider: provider}, logg)
	if err != nil {
		logg.Error(ctx, "failed to create users service", err)
		os.Exit(1)
	}

	productService, err := products.NewService(products.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(ctx, "failed to create products service", err)
		os.Exit(1)
	}

	var publisher orders.EventPublisher
	if cfg.GCP.ProjectID != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := psClient.Close(); err != nil {
				logg.Error(ctx, "error closing pubsub", err)
			}
		}()
		pingers["pubsub"] = psClient
		publisher = psClient
	} else {
		logg.Warn(ctx, "no GCP project configured, order events will not be published")
	}

	orderService, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, cartRegistry, publisher, cfg.PubSub.OrdersTopic, logg)
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	var mediaService *media.Service
	if cfg.GCS.BucketName != "" {
		gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap object storage", err)
			os.Exit(1)
		}
		defer func() {
			if err := gcsClient.Close(); err != nil {
				logg.Error(ctx, "error closing object storage", err)
			}
		}()
		pingers["gcs"] = gcsClient
		mediaService, err = media.NewService(gcsClient, cfg.Media, logg)
		if err != nil {
			logg.Error(ctx, "failed to create media service", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(ctx, "no GCS bucket configured, media uploads are disabled")
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := metrics.NewHTTPMetrics(promRegistry)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:         cfg,
			Logger:         logg,
			HTTPMetrics:    httpMetrics,
			MetricsHandler: promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
			HealthPingers:  pingers,
			SessionChecker: refreshSessions,
			AuthService:    authService,
			UserService:    userService,
			ProductService: productService,
			OrderService:   orderService,
			MediaService:   mediaService,
			CartRegistry:   cartRegistry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
