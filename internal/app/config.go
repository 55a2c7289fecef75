package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/course-pricing/internal/domain/checkout"
	"github.com/xenking/course-pricing/internal/domain/pricing"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (PRICING_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (PRICING_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	// Storage "memory" serves the demo catalog without a database.
	Storage  string `default:"postgres" usage:"Storage backend: postgres or memory"`
	Stripe   StripeConfig
	Checkout CheckoutConfig
	Pricing  PricingConfig
	Graceful GracefulConfig
}

// StripeConfig configures the payment processor client.
type StripeConfig struct {
	SecretKey string `usage:"Stripe secret key (PRICING_STRIPE_SECRETKEY or STRIPE_SECRET_KEY)" flag:"stripe-secret-key"`
	Currency  string `default:"usd" usage:"Currency of fixed amount coupons"`
}

// CheckoutConfig controls checkout coupon minting.
type CheckoutConfig struct {
	ErrorURL string        `usage:"Page to redirect to when the processor rejects a checkout" flag:"checkout-error-url"`
	CodeTTL  time.Duration `default:"24h" usage:"Lifetime of minted coupons and promotion codes" flag:"code-ttl"`
}

// PricingConfig tunes the discount tables. Empty values keep the built-in tables.
type PricingConfig struct {
	BulkTiers            string `usage:"Seat tiers as seats:percent pairs, e.g. 2:0.05,5:0.15" flag:"bulk-tiers"`
	PPP                  string `usage:"Regional discounts as CC:percent pairs, e.g. IN:0.6,BR:0.5" flag:"ppp"`
	MaxUpgradeChainDepth int    `default:"32" usage:"Longest upgrade chain walked when crediting prior purchases"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PRICING",
		Files:     []string{"config.yaml", "/etc/pricing/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints the loader cannot express.
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set PRICING_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}
	if _, err := c.pricingOptions(); err != nil {
		return err
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names to the PRICING_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Stripe.SecretKey == "" {
		c.Stripe.SecretKey = os.Getenv("STRIPE_SECRET_KEY")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

// pricingOptions translates the pricing section into engine options.
func (c *Config) pricingOptions() ([]pricing.Option, error) {
	opts := []pricing.Option{pricing.WithMaxChainDepth(c.Pricing.MaxUpgradeChainDepth)}
	if c.Pricing.BulkTiers != "" {
		tiers, err := pricing.ParseBulkTiers(c.Pricing.BulkTiers)
		if err != nil {
			return nil, errors.Wrap(err, "bulk tiers")
		}
		opts = append(opts, pricing.WithBulkTiers(tiers))
	}
	if c.Pricing.PPP != "" {
		table, err := pricing.ParsePPPTable(c.Pricing.PPP)
		if err != nil {
			return nil, errors.Wrap(err, "ppp table")
		}
		opts = append(opts, pricing.WithPPPTable(table))
	}
	return opts, nil
}

func (c *Config) checkoutOptions() []checkout.Option {
	return []checkout.Option{checkout.WithCodeTTL(c.Checkout.CodeTTL)}
}
