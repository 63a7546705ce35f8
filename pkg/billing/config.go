package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/billing/pkg/environment"
)

// Config holds webhook and catalog settings.
type Config struct {
	WebhookSecret         string        `env:"PADDLE_WEBHOOK_SECRET"`
	SignatureTolerance    time.Duration `env:"BILLING_SIGNATURE_TOLERANCE" envDefault:"300s"`
	InsecureSkipSignature bool          `env:"BILLING_INSECURE_SKIP_SIGNATURE" envDefault:"false"`
	PeriodFetchTimeout    time.Duration `env:"BILLING_PERIOD_FETCH_TIMEOUT" envDefault:"3s"`

	CatalogPath      string `env:"BILLING_PLAN_CATALOG"` // YAML file, built-in catalog when empty
	StarterPriceRef  string `env:"BILLING_PRICE_STARTER"`
	GrowthPriceRef   string `env:"BILLING_PRICE_GROWTH"`
	BusinessPriceRef string `env:"BILLING_PRICE_BUSINESS"`

	Ledger    string `env:"BILLING_LEDGER" envDefault:"postgres"` // postgres, redis or memory
	LedgerKey string `env:"BILLING_LEDGER_KEY"`                   // seals stored payloads when set
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	switch c.Ledger {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger)
	}
	if c.SignatureTolerance < 0 {
		return errors.New("signature tolerance must not be negative")
	}
	if c.LedgerKey != "" && len(c.LedgerKey) < 32 {
		return errors.New("ledger key must be at least 32 bytes")
	}
	return nil
}

// LoadCatalog returns the configured catalog with price references applied.
func (c Config) LoadCatalog() (*Catalog, error) {
	catalog := DefaultCatalog()
	if c.CatalogPath != "" {
		var err error
		if catalog, err = LoadCatalogFile(c.CatalogPath); err != nil {
			return nil, err
		}
	}
	return catalog.WithPriceRefs(map[Plan]string{
		PlanStarter:  c.StarterPriceRef,
		PlanGrowth:   c.GrowthPriceRef,
		PlanBusiness: c.BusinessPriceRef,
	})
}

// NewVerifierFromConfig returns the webhook verifier. It returns a nil
// verifier, disabling signature checks, only when skipping was requested,
// no secret is configured and env is not production.
func NewVerifierFromConfig(ctx context.Context, c Config, env environment.Environment, log *slog.Logger) (*Verifier, error) {
	if c.WebhookSecret != "" {
		return NewVerifier(c.WebhookSecret, c.SignatureTolerance), nil
	}
	if !c.InsecureSkipSignature || env.IsProduction() {
		return nil, errors.Join(ErrConfiguration, ErrMissingSecret)
	}
	log.LogAttrs(ctx, slog.LevelError,
		"WEBHOOK SIGNATURE VERIFICATION DISABLED: unsigned billing events will be accepted",
		slog.String("env", string(env)))
	return nil, nil
}
