package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"shipping-bot/internal/logging"
)

// Reference data source kinds.
const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"
)

const (
	upsProductionBase = "https://onlinetools.ups.com"
	upsTestBase       = "https://wwwcie.ups.com"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Data     DataConfig     `mapstructure:"data"`
	Database DatabaseConfig `mapstructure:"database"`
	Quote    QuoteConfig    `mapstructure:"quote"`
	UPS      UPSConfig      `mapstructure:"ups"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Server   ServerConfig   `mapstructure:"server"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DataConfig selects where reference tables and aliases come from.
type DataConfig struct {
	Source         string        `mapstructure:"source"`
	Dir            string        `mapstructure:"dir"`
	AliasesPath    string        `mapstructure:"aliases_path"`
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// QuoteConfig holds presentation limits applied around the rating engine.
type QuoteConfig struct {
	MaxOffers       int           `mapstructure:"max_offers"`
	MaxWeightKg     float64       `mapstructure:"max_weight_kg"`
	RealtimeTimeout time.Duration `mapstructure:"realtime_timeout"`
}

// UPSAccountConfig is one UPS OAuth client and shipper number.
type UPSAccountConfig struct {
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	AccountNumber string `mapstructure:"account_number"`
}

// OriginConfig is the shipper address sent to rating APIs.
type OriginConfig struct {
	AddressLines []string `mapstructure:"address_lines"`
	City         string   `mapstructure:"city"`
	PostalCode   string   `mapstructure:"postal_code"`
	CountryCode  string   `mapstructure:"country_code"`
}

// UPSConfig covers the UPS Rating API.
type UPSConfig struct {
	Enabled     bool             `mapstructure:"enabled"`
	Production  bool             `mapstructure:"production"`
	BaseURL     string           `mapstructure:"base_url"`
	AuthURL     string           `mapstructure:"auth_url"`
	Standard    UPSAccountConfig `mapstructure:"standard"`
	Worldwide   UPSAccountConfig `mapstructure:"wwe"`
	ShipperName string           `mapstructure:"shipper_name"`
	Origin      OriginConfig     `mapstructure:"origin"`
	Timeout     time.Duration    `mapstructure:"timeout"`
	UserAgent   string           `mapstructure:"user_agent"`
	RateLimit   float64          `mapstructure:"requests_per_second"`
}

// CacheConfig controls caching of real-time carrier rates.
type CacheConfig struct {
	TTL   time.Duration `mapstructure:"ttl"`
	Redis RedisConfig   `mapstructure:"redis"`
}

// RedisConfig describes the Redis instance used as rate cache.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NotifyConfig routes quote notifications.
type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot used for notifications.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHIPQUOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "shipquote")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("data.source", SourceCSV)
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.aliases_path", "")
	v.SetDefault("data.reload_interval", "0s")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.connect_timeout", "10s")

	v.SetDefault("quote.max_offers", 10)
	v.SetDefault("quote.max_weight_kg", 70.0)
	v.SetDefault("quote.realtime_timeout", "8s")

	// Credentials have empty defaults so SHIPQUOTE_UPS_* variables are picked up.
	v.SetDefault("ups.enabled", false)
	v.SetDefault("ups.production", true)
	v.SetDefault("ups.base_url", "")
	v.SetDefault("ups.auth_url", "")
	v.SetDefault("ups.standard.client_id", "")
	v.SetDefault("ups.standard.client_secret", "")
	v.SetDefault("ups.standard.account_number", "")
	v.SetDefault("ups.wwe.client_id", "")
	v.SetDefault("ups.wwe.client_secret", "")
	v.SetDefault("ups.wwe.account_number", "")
	v.SetDefault("ups.shipper_name", "Shipper")
	v.SetDefault("ups.origin.address_lines", []string{})
	v.SetDefault("ups.origin.city", "")
	v.SetDefault("ups.origin.postal_code", "")
	v.SetDefault("ups.origin.country_code", "FR")
	v.SetDefault("ups.timeout", "30s")
	v.SetDefault("ups.user_agent", "")
	v.SetDefault("ups.requests_per_second", 5.0)

	v.SetDefault("cache.ttl", "15m")
	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)

	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.chat_id", "")
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("notify.telegram.timeout", "10s")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("export.max_data_points", 1000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Data.Source {
	case SourceCSV:
		if c.Data.Dir == "" {
			return fmt.Errorf("data.dir is required for the csv source")
		}
	case SourcePostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres source")
		}
	default:
		return fmt.Errorf("data.source must be %q or %q, got %q", SourceCSV, SourcePostgres, c.Data.Source)
	}
	if c.Data.ReloadInterval < 0 {
		return fmt.Errorf("data.reload_interval cannot be negative")
	}
	if c.Quote.MaxOffers <= 0 {
		return fmt.Errorf("quote.max_offers must be greater than zero")
	}
	if c.Quote.MaxWeightKg <= 0 {
		return fmt.Errorf("quote.max_weight_kg must be greater than zero")
	}
	if c.Quote.RealtimeTimeout <= 0 {
		return fmt.Errorf("quote.realtime_timeout must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.UPS.Enabled {
		if c.UPS.Standard.ClientID == "" && c.UPS.Worldwide.ClientID == "" {
			return fmt.Errorf("ups.enabled requires credentials for ups.standard or ups.wwe")
		}
		if c.UPS.RateLimit < 0 {
			return fmt.Errorf("ups.requests_per_second cannot be negative")
		}
		if len(c.UPS.Origin.CountryCode) != 2 {
			return fmt.Errorf("ups.origin.country_code must be an ISO2 code")
		}
	}
	if c.Cache.Redis.Enabled {
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required")
		}
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be greater than zero")
		}
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token is required")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// MaxWeight returns the quote weight ceiling.
func (c *Config) MaxWeight() decimal.Decimal {
	return decimal.NewFromFloat(c.Quote.MaxWeightKg)
}

// UPSEndpoints returns the rating base URL and OAuth token URL, honouring
// explicit overrides before the production/test switch.
func (c *Config) UPSEndpoints() (baseURL, authURL string) {
	host := upsProductionBase
	if !c.UPS.Production {
		host = upsTestBase
	}
	baseURL = c.UPS.BaseURL
	if baseURL == "" {
		baseURL = host + "/api"
	}
	authURL = c.UPS.AuthURL
	if authURL == "" {
		authURL = host + "/security/v1/oauth/token"
	}
	return baseURL, authURL
}
