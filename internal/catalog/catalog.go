// Package catalog loads the subscription plan catalog that is seeded into
// the database at startup.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/DukeRupert/quotaledger/internal/domain"
)

//go:embed default.yaml
var defaultCatalog []byte

// DefaultCurrency is applied to plans that omit a currency.
const DefaultCurrency = "usd"

// PlanSpec describes one plan to seed.
type PlanSpec struct {
	Name         string          `yaml:"name"`
	Description  string          `yaml:"description"`
	PriceCents   int64           `yaml:"price_cents"`
	Currency     string          `yaml:"currency"`
	DurationDays int             `yaml:"duration_days"`
	Limits       domain.LimitSet `yaml:"limits"`
	Features     []string        `yaml:"features"`
}

// Catalog is an ordered list of plans.
type Catalog struct {
	Plans []PlanSpec `yaml:"plans"`
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from path, or returns the default catalog when path
// is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog. Unknown fields are rejected.
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode plan catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks every plan and applies defaults.
func (c *Catalog) Validate() error {
	if len(c.Plans) == 0 {
		return errors.New("plan catalog is empty")
	}

	seen := make(map[string]bool, len(c.Plans))
	for i := range c.Plans {
		p := &c.Plans[i]
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return fmt.Errorf("plan %d: name is required", i)
		}
		key := strings.ToLower(p.Name)
		if seen[key] {
			return fmt.Errorf("plan %q: duplicate name", p.Name)
		}
		seen[key] = true

		if p.PriceCents < 0 {
			return fmt.Errorf("plan %q: price_cents must not be negative", p.Name)
		}
		if p.DurationDays <= 0 {
			return fmt.Errorf("plan %q: duration_days must be positive", p.Name)
		}
		if p.DurationDays > math.MaxInt32 {
			return fmt.Errorf("plan %q: duration_days is too large", p.Name)
		}
		if err := p.Limits.Validate(); err != nil {
			return fmt.Errorf("plan %q: %w", p.Name, err)
		}
		for _, r := range domain.Resources {
			if p.Limits.Limit(r) > math.MaxInt32 {
				return fmt.Errorf("plan %q: limit for %s is too large", p.Name, r)
			}
		}
		if p.Currency == "" {
			p.Currency = DefaultCurrency
		}
		p.Currency = strings.ToLower(p.Currency)
	}
	return nil
}
