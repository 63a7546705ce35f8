package billing

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Plan is a named pricing tier.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanStarter  Plan = "starter"
	PlanGrowth   Plan = "growth"
	PlanBusiness Plan = "business"
)

// Unlimited marks a limit without a ceiling (-1 chosen for SQL compatibility).
const Unlimited int64 = -1

// ParsePlan validates a plan name.
func ParsePlan(s string) (Plan, error) {
	p := Plan(s)
	switch p {
	case PlanFree, PlanStarter, PlanGrowth, PlanBusiness:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPlan, s)
}

// IsPaid reports whether p is billed.
func (p Plan) IsPaid() bool {
	return p != PlanFree && p != ""
}

func (p Plan) String() string { return string(p) }

// PlanLimits bounds resource usage and price for a plan.
type PlanLimits struct {
	MaxChatbots     int64  `yaml:"max_chatbots" json:"max_chatbots"`
	MaxMessages     int64  `yaml:"max_messages" json:"max_messages"`
	PriceMinorUnits int64  `yaml:"price_minor_units" json:"price_minor_units"`
	Currency        string `yaml:"currency" json:"currency,omitempty"`
	PriceRef        string `yaml:"price_ref" json:"-"` // provider price identifier, empty for free
}

// Allows reports whether usage fits within the limits.
func (l PlanLimits) Allows(u Usage) bool {
	return within(u.ChatbotsCount, l.MaxChatbots) && within(u.MessagesCount, l.MaxMessages)
}

func within(v, limit int64) bool {
	return limit == Unlimited || v <= limit
}

// Catalog is the static plan configuration. It is read-only after
// construction and safe for concurrent use.
type Catalog struct {
	plans map[Plan]PlanLimits
}

// DefaultCatalog returns the built-in limits. Price references are empty
// and must be supplied via configuration before checkout works.
func DefaultCatalog() *Catalog {
	return &Catalog{plans: map[Plan]PlanLimits{
		PlanFree:     {MaxChatbots: 1, MaxMessages: 100, Currency: "USD"},
		PlanStarter:  {MaxChatbots: 3, MaxMessages: 2000, PriceMinorUnits: 1900, Currency: "USD"},
		PlanGrowth:   {MaxChatbots: 10, MaxMessages: 10000, PriceMinorUnits: 4900, Currency: "USD"},
		PlanBusiness: {MaxChatbots: Unlimited, MaxMessages: 50000, PriceMinorUnits: 14900, Currency: "USD"},
	}}
}

// NewCatalog validates and copies plans into a Catalog.
func NewCatalog(plans map[Plan]PlanLimits) (*Catalog, error) {
	if _, ok := plans[PlanFree]; !ok {
		return nil, errors.Join(ErrConfiguration, errors.New("catalog must define the free plan"))
	}
	seen := make(map[string]Plan, len(plans))
	c := &Catalog{plans: make(map[Plan]PlanLimits, len(plans))}
	for p, l := range plans {
		if _, err := ParsePlan(string(p)); err != nil {
			return nil, errors.Join(ErrConfiguration, err)
		}
		if l.MaxChatbots < Unlimited || l.MaxMessages < Unlimited {
			return nil, errors.Join(ErrConfiguration, fmt.Errorf("plan %q has a negative limit", p))
		}
		if l.PriceRef != "" {
			if other, dup := seen[l.PriceRef]; dup {
				return nil, errors.Join(ErrConfiguration, fmt.Errorf("price ref %q used by %q and %q", l.PriceRef, other, p))
			}
			seen[l.PriceRef] = p
		}
		c.plans[p] = l
	}
	return c, nil
}

type catalogFile struct {
	Plans map[Plan]PlanLimits `yaml:"plans"`
}

// LoadCatalog decodes a YAML catalog:
//
//	plans:
//	  free:    {max_chatbots: 1, max_messages: 100}
//	  starter: {max_chatbots: 3, max_messages: 2000, price_minor_units: 1900, price_ref: pri_01h...}
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Join(ErrConfiguration, fmt.Errorf("decode plan catalog: %w", err))
	}
	return NewCatalog(f.Plans)
}

// LoadCatalogFile reads a catalog from path.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrConfiguration, err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// WithPriceRefs returns a copy of c with price references overridden for
// the non-empty entries of refs.
func (c *Catalog) WithPriceRefs(refs map[Plan]string) (*Catalog, error) {
	plans := make(map[Plan]PlanLimits, len(c.plans))
	for p, l := range c.plans {
		if ref := refs[p]; ref != "" {
			l.PriceRef = ref
		}
		plans[p] = l
	}
	return NewCatalog(plans)
}

// Limits returns the limits of p.
func (c *Catalog) Limits(p Plan) (PlanLimits, bool) {
	l, ok := c.plans[p]
	return l, ok
}

// PlanForPriceRef maps a provider price identifier back to its plan.
func (c *Catalog) PlanForPriceRef(ref string) (Plan, bool) {
	if ref == "" {
		return "", false
	}
	for p, l := range c.plans {
		if l.PriceRef == ref {
			return p, true
		}
	}
	return "", false
}

// Plans lists configured plans in a stable order.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for p := range c.plans {
		out = append(out, p)
	}
	order := []Plan{PlanFree, PlanStarter, PlanGrowth, PlanBusiness}
	slices.SortFunc(out, func(a, b Plan) int {
		return slices.Index(order, a) - slices.Index(order, b)
	})
	return out
}
