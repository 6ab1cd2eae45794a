package pricing

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/smallbiznis/creditgate/internal/pricing/domain"
)

// Catalog is the single pricing table. Element specific definitions are
// consulted before the wildcard rules.
type Catalog struct {
	elements map[string]domain.ElementCostDefinition
	wildcard []domain.PropertyDefinition
}

func NewCatalog(defs []domain.ElementCostDefinition) (*Catalog, error) {
	c := &Catalog{elements: make(map[string]domain.ElementCostDefinition, len(defs))}
	for _, def := range defs {
		elementType := strings.TrimSpace(def.ElementType)
		if elementType == "" {
			return nil, fmt.Errorf("%w: element type is required", domain.ErrInvalidCatalog)
		}
		if def.BaseCost < 0 {
			return nil, fmt.Errorf("%w: %s base cost is negative", domain.ErrInvalidCatalog, elementType)
		}
		for _, prop := range def.Properties {
			if err := validateProperty(elementType, prop); err != nil {
				return nil, err
			}
		}

		if elementType == domain.WildcardElementType {
			if def.BaseCost != 0 {
				return nil, fmt.Errorf("%w: wildcard rules cannot carry a base cost", domain.ErrInvalidCatalog)
			}
			c.wildcard = append(c.wildcard, def.Properties...)
			continue
		}
		if _, exists := c.elements[elementType]; exists {
			return nil, fmt.Errorf("%w: duplicate element type %s", domain.ErrInvalidCatalog, elementType)
		}
		def.ElementType = elementType
		c.elements[elementType] = def
	}
	return c, nil
}

func validateProperty(elementType string, prop domain.PropertyDefinition) error {
	name := strings.TrimSpace(prop.Name)
	if name == "" {
		return fmt.Errorf("%w: %s has a property without name", domain.ErrInvalidCatalog, elementType)
	}
	if _, err := path.Match(name, ""); err != nil {
		return fmt.Errorf("%w: %s.%s: %v", domain.ErrInvalidCatalog, elementType, name, err)
	}
	if prop.CreditCost != nil && len(prop.Options) > 0 {
		return fmt.Errorf("%w: %s.%s is both a toggle and an option list", domain.ErrInvalidCatalog, elementType, name)
	}
	if prop.CreditCost != nil && *prop.CreditCost < 0 {
		return fmt.Errorf("%w: %s.%s cost is negative", domain.ErrInvalidCatalog, elementType, name)
	}
	for _, opt := range prop.Options {
		if opt.CreditCost != nil && *opt.CreditCost < 0 {
			return fmt.Errorf("%w: %s.%s=%s cost is negative", domain.ErrInvalidCatalog, elementType, name, opt.Value)
		}
	}
	return nil
}

// Definitions returns the catalog entries sorted by element type, the
// wildcard entry last.
func (c *Catalog) Definitions() []domain.ElementCostDefinition {
	types := make([]string, 0, len(c.elements))
	for t := range c.elements {
		types = append(types, t)
	}
	sort.Strings(types)

	out := make([]domain.ElementCostDefinition, 0, len(types)+1)
	for _, t := range types {
		out = append(out, c.elements[t])
	}
	if len(c.wildcard) > 0 {
		out = append(out, domain.ElementCostDefinition{
			ElementType: domain.WildcardElementType,
			Properties:  c.wildcard,
		})
	}
	return out
}

func (c *Catalog) definition(elementType string) (domain.ElementCostDefinition, bool) {
	def, ok := c.elements[strings.TrimSpace(elementType)]
	return def, ok
}
