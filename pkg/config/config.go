package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "SHOPBOT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Sheets       SheetsConfig
	Operator     OperatorConfig
	Discounts    DiscountsConfig
	Shipping     ShippingConfig
	Catalog      CatalogConfig
	Checkout     CheckoutConfig
	Broadcast    BroadcastConfig
	Backup       BackupConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"SHOPBOT_APP_ENV" required:"true"`
	Port         string `envconfig:"SHOPBOT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"SHOPBOT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPBOT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPBOT_DB_DSN"`
	Driver string `envconfig:"SHOPBOT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHOPBOT_DB_HOST"`
	LegacyPort     int    `envconfig:"SHOPBOT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHOPBOT_DB_USER"`
	LegacyPassword string `envconfig:"SHOPBOT_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHOPBOT_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHOPBOT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOPBOT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPBOT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPBOT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPBOT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPBOT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHOPBOT_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPBOT_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPBOT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPBOT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPBOT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPBOT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPBOT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPBOT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// SheetsConfig points at the spreadsheet that is the system of record for
// the catalog and the order ledger.
type SheetsConfig struct {
	SpreadsheetID   string `envconfig:"SHOPBOT_SHEETS_SPREADSHEET_ID" required:"true"`
	CredentialsJSON string `envconfig:"SHOPBOT_SHEETS_CREDENTIALS_JSON"`
	CredentialsFile string `envconfig:"SHOPBOT_SHEETS_CREDENTIALS_FILE"`
	CatalogSheet    string `envconfig:"SHOPBOT_SHEETS_CATALOG_SHEET" default:"Catalog"`
	OrdersSheet     string `envconfig:"SHOPBOT_SHEETS_ORDERS_SHEET" default:"Orders"`
}

// OperatorConfig identifies the human operator who approves orders.
type OperatorConfig struct {
	ManagerID       int64  `envconfig:"SHOPBOT_MANAGER_ID" required:"true"`
	ManagerUsername string `envconfig:"SHOPBOT_MANAGER_USERNAME"`
	SysChatID       int64  `envconfig:"SHOPBOT_SYS_CHAT_ID"`
}

type DiscountsConfig struct {
	LiquidCategory  string  `envconfig:"SHOPBOT_DISCOUNT_LIQUID_CATEGORY" default:"Liquids"`
	VolumeThreshold int     `envconfig:"SHOPBOT_DISCOUNT_QTY_THRESHOLD" default:"5"`
	VolumePerUnit   float64 `envconfig:"SHOPBOT_DISCOUNT_PER_LIQUID" default:"5.0"`
}

type ShippingConfig struct {
	ParcelFee float64 `envconfig:"SHOPBOT_SHIPPING_PARCEL_FEE" default:"16"`
}

type CatalogConfig struct {
	RefreshInterval time.Duration `envconfig:"SHOPBOT_CATALOG_REFRESH_INTERVAL" default:"10m"`
}

type CheckoutConfig struct {
	SessionTTL time.Duration `envconfig:"SHOPBOT_CHECKOUT_SESSION_TTL" default:"30m"`
}

type BroadcastConfig struct {
	Throttle time.Duration `envconfig:"SHOPBOT_BROADCAST_THROTTLE" default:"50ms"`
}

// BackupConfig drives the periodic database export reported to the sys
// chat.
type BackupConfig struct {
	Interval time.Duration `envconfig:"SHOPBOT_BACKUP_INTERVAL" default:"4h"`
	Dir      string        `envconfig:"SHOPBOT_BACKUP_DIR" default:"backups"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SHOPBOT_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		"SHOPBOT_DB_HOST": db.LegacyHost,
		"SHOPBOT_DB_USER": db.LegacyUser,
		"SHOPBOT_DB_NAME": db.LegacyName,
	}
	for _, env := range []string{"SHOPBOT_DB_HOST", "SHOPBOT_DB_USER", "SHOPBOT_DB_NAME"} {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either SHOPBOT_DB_DSN or %s are required", strings.Join(missing, ", "))
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
