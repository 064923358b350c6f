package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	FeatureFlags FeatureFlagsConfig
	Firebase     FirebaseConfig
	GCP          GCPConfig
	GCS          GCSConfig
	Media        MediaConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHOPLINE_APP_ENV" required:"true"`
	Port         string `envconfig:"SHOPLINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SHOPLINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPLINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPLINE_DB_DSN"`
	Driver string `envconfig:"SHOPLINE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHOPLINE_DB_HOST"`
	LegacyPort     int    `envconfig:"SHOPLINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHOPLINE_DB_USER"`
	LegacyPassword string `envconfig:"SHOPLINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHOPLINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHOPLINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOPLINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPLINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPLINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPLINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPLINE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHOPLINE_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPLINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPLINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPLINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPLINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPLINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPLINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPLINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"SHOPLINE_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"SHOPLINE_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"SHOPLINE_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"SHOPLINE_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"SHOPLINE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SHOPLINE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SHOPLINE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SHOPLINE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SHOPLINE_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	UseSQLite        bool `envconfig:"SHOPLINE_USE_SQLITE" default:"false"`
	AutoMigrate      bool `envconfig:"SHOPLINE_AUTO_MIGRATE" default:"false"`
	UseLocalIdentity bool `envconfig:"SHOPLINE_USE_LOCAL_IDENTITY" default:"false"`
}

type FirebaseConfig struct {
	WebAPIKey       string        `envconfig:"SHOPLINE_FIREBASE_WEB_API_KEY"`
	UsersCollection string        `envconfig:"SHOPLINE_FIREBASE_USERS_COLLECTION" default:"users"`
	SignInTimeout   time.Duration `envconfig:"SHOPLINE_FIREBASE_SIGNIN_TIMEOUT" default:"10s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SHOPLINE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SHOPLINE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SHOPLINE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName    string `envconfig:"SHOPLINE_GCS_BUCKET_NAME"`
	PublicBaseURL string `envconfig:"SHOPLINE_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
}

type MediaConfig struct {
	MaxUploadMB int `envconfig:"SHOPLINE_MAX_UPLOAD_MB" default:"10"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"SHOPLINE_PUBSUB_ORDERS_TOPIC" default:"shopline-order-events"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
