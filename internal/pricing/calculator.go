package pricing

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/smallbiznis/creditgate/internal/pricing/domain"
	"github.com/smallbiznis/creditgate/pkg/credits"
)

// MaxElements bounds one composition.
const MaxElements = 500

// ValidateElements rejects compositions that cannot be priced.
func ValidateElements(elements []domain.Element) error {
	if len(elements) > MaxElements {
		return fmt.Errorf("%w: at most %d", domain.ErrTooManyElements, MaxElements)
	}
	for i, el := range elements {
		if strings.TrimSpace(el.Type) == "" {
			return fmt.Errorf("%w: element %d has no type", domain.ErrInvalidElement, i)
		}
	}
	return nil
}

// Calculate prices elements under policy.
func (c *Catalog) Calculate(policy domain.Policy, elements []domain.Element) (domain.Breakdown, error) {
	switch policy {
	case domain.PolicyTotal, "":
		return c.CalculateTotalCreditCost(elements), nil
	case domain.PolicyTemplate:
		return c.CalculateTemplateCreditCost(elements), nil
	default:
		return domain.Breakdown{}, fmt.Errorf("%w: %s", domain.ErrUnknownPolicy, policy)
	}
}

// CalculateTotalCreditCost charges base costs and property surcharges.
func (c *Catalog) CalculateTotalCreditCost(elements []domain.Element) domain.Breakdown {
	return c.calculate(domain.PolicyTotal, elements)
}

// CalculateTemplateCreditCost charges property surcharges only.
func (c *Catalog) CalculateTemplateCreditCost(elements []domain.Element) domain.Breakdown {
	return c.calculate(domain.PolicyTemplate, elements)
}

func (c *Catalog) calculate(policy domain.Policy, elements []domain.Element) domain.Breakdown {
	out := domain.Breakdown{Policy: policy, Details: []domain.Detail{}}

	for _, el := range elements {
		elementType := strings.TrimSpace(el.Type)
		def, known := c.definition(elementType)

		if policy == domain.PolicyTotal && known && def.BaseCost > 0 {
			out.ElementCost += def.BaseCost
			out.Details = append(out.Details, domain.Detail{
				ElementID:   el.ID,
				ElementType: elementType,
				Kind:        domain.DetailKindBase,
				Rule:        elementType,
				Cost:        def.BaseCost,
			})
		}

		for _, name := range sortedKeys(el.Properties) {
			value := el.Properties[name]
			cost, rule, ok := c.priceProperty(def.Properties, elementType, name, value)
			if !ok {
				continue
			}
			out.PropertyCosts += cost
			out.Details = append(out.Details, domain.Detail{
				ElementID:   el.ID,
				ElementType: elementType,
				Kind:        domain.DetailKindProperty,
				Property:    name,
				Value:       valueString(value),
				Rule:        rule,
				Cost:        cost,
			})
		}
	}

	out.TotalCost = out.ElementCost + out.PropertyCosts
	sortDetails(out.Details)
	return out
}

// priceProperty returns the first rule that charges for the value. Element
// rules win over wildcard rules, so a property is priced at most once.
func (c *Catalog) priceProperty(own []domain.PropertyDefinition, elementType, name string, value any) (credits.Amount, string, bool) {
	if cost, rule, ok := matchRules(own, name, value); ok {
		return cost, elementType + "." + rule, true
	}
	if cost, rule, ok := matchRules(c.wildcard, name, value); ok {
		return cost, domain.WildcardElementType + "." + rule, true
	}
	return 0, "", false
}

func matchRules(defs []domain.PropertyDefinition, name string, value any) (credits.Amount, string, bool) {
	for _, def := range defs {
		if !nameMatches(def.Name, name) {
			continue
		}
		if def.CreditCost != nil {
			if *def.CreditCost > 0 && truthy(value) {
				return *def.CreditCost, def.Name, true
			}
			continue
		}
		str := valueString(value)
		for _, opt := range def.Options {
			if opt.CreditCost == nil || *opt.CreditCost <= 0 {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(opt.Value), str) {
				return *opt.CreditCost, def.Name, true
			}
		}
	}
	return 0, "", false
}

func nameMatches(pattern, name string) bool {
	if pattern == name {
		return true
	}
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "", "false", "0", "no", "off", "none":
			return false
		}
		return true
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	default:
		return true
	}
}

func valueString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortDetails(details []domain.Detail) {
	sort.SliceStable(details, func(i, j int) bool {
		a, b := details[i], details[j]
		if a.ElementType != b.ElementType {
			return a.ElementType < b.ElementType
		}
		if a.ElementID != b.ElementID {
			return a.ElementID < b.ElementID
		}
		if a.Kind != b.Kind {
			return a.Kind == domain.DetailKindBase
		}
		if a.Property != b.Property {
			return a.Property < b.Property
		}
		return a.Value < b.Value
	})
}
