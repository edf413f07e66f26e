package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Database       DatabaseConfig       `yaml:"database"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	Market         MarketConfig         `yaml:"market"`
	BlackMarket    BlackMarketConfig    `yaml:"blackmarket"`
	Economy        EconomyConfig        `yaml:"economy"`
	Discord        DiscordConfig        `yaml:"discord"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
}

// DatabaseConfig holds store connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Driver   string `yaml:"driver"` // "postgres" or "sqlite"
	// Path is the database file location for the sqlite driver.
	Path string `yaml:"path"`
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// MarketConfig holds standard marketplace settings.
type MarketConfig struct {
	// ListingTTL is how long a standard listing stays up before the
	// expiry sweep removes it.
	ListingTTL time.Duration `yaml:"listing_ttl"`
	// MaxListingsPerSeller caps concurrent listings per actor.
	MaxListingsPerSeller int `yaml:"max_listings_per_seller"`
	// SweepInterval is how often the expiry sweep runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// BlackMarketConfig holds black-market rotation settings.
type BlackMarketConfig struct {
	Enabled         bool          `yaml:"enabled"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	// DiscountPct is the buyer-facing discount in percent (0-100).
	DiscountPct float64 `yaml:"discount_pct"`
	// SellerMultiplier is applied to the pre-discount price when paying
	// the seller of a discounted listing.
	SellerMultiplier float64 `yaml:"seller_multiplier"`
}

// EconomyConfig holds money formatting settings.
type EconomyConfig struct {
	CurrencySymbol string `yaml:"currency_symbol"`
	DecimalPlaces  int    `yaml:"decimal_places"`
}

// DiscordConfig holds webhook notification settings.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Driver:  "postgres",
			Path:    "bazaar.db",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "bazaar",
			ServiceVersion: "0.1.0",
		},
		Market: MarketConfig{
			ListingTTL:           7 * 24 * time.Hour,
			MaxListingsPerSeller: 10,
			SweepInterval:        time.Hour,
		},
		BlackMarket: BlackMarketConfig{
			Enabled:          true,
			RefreshInterval:  24 * time.Hour,
			DiscountPct:      30.0,
			SellerMultiplier: 2.0,
		},
		Economy: EconomyConfig{
			CurrencySymbol: "$",
			DecimalPlaces:  2,
		},
		Discord: DiscordConfig{
			Enabled: false,
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "bazaar-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
	}
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"postgres\" or \"sqlite\"", c.Database.Driver)
	}
	if c.BlackMarket.RefreshInterval <= 0 {
		return fmt.Errorf("blackmarket.refresh_interval must be positive, got %s", c.BlackMarket.RefreshInterval)
	}
	if c.BlackMarket.DiscountPct < 0 || c.BlackMarket.DiscountPct >= 100 {
		return fmt.Errorf("blackmarket.discount_pct must be in [0, 100), got %v", c.BlackMarket.DiscountPct)
	}
	if c.BlackMarket.SellerMultiplier <= 0 {
		return fmt.Errorf("blackmarket.seller_multiplier must be positive, got %v", c.BlackMarket.SellerMultiplier)
	}
	if c.Market.MaxListingsPerSeller <= 0 {
		return fmt.Errorf("market.max_listings_per_seller must be positive, got %d", c.Market.MaxListingsPerSeller)
	}
	if c.Discord.Enabled && c.Discord.WebhookURL == "" {
		return fmt.Errorf("discord.webhook_url is required when discord.enabled is true")
	}
	return nil
}
