package pricing

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/smallbiznis/creditgate/internal/config"
	"github.com/smallbiznis/creditgate/internal/pricing/domain"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Elements []domain.ElementCostDefinition `yaml:"elements"`
}

// LoadCatalog reads a YAML catalog that replaces the built-in one.
func LoadCatalog(filename string) (*Catalog, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read pricing catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var file catalogFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCatalog, err)
	}
	if len(file.Elements) == 0 {
		return nil, fmt.Errorf("%w: no elements", domain.ErrInvalidCatalog)
	}
	return NewCatalog(file.Elements)
}

// NewFromConfig loads PRICING_CATALOG_PATH when set, the built-in catalog
// otherwise.
func NewFromConfig(cfg config.Config, log *zap.Logger) (*Catalog, error) {
	filename := strings.TrimSpace(cfg.Pricing.CatalogPath)
	if filename == "" {
		return DefaultCatalog(), nil
	}
	c, err := LoadCatalog(filename)
	if err != nil {
		return nil, err
	}
	log.Named("pricing").Info("pricing catalog loaded", zap.String("file", filename), zap.Int("element_types", len(c.elements)))
	return c, nil
}
