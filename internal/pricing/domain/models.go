// Package domain contains the element catalog and pricing results.
package domain

import (
	"errors"

	"github.com/smallbiznis/creditgate/pkg/credits"
)

// WildcardElementType marks rules that apply to every element type.
const WildcardElementType = "*"

var (
	ErrInvalidCatalog  = errors.New("invalid_pricing_catalog")
	ErrUnknownPolicy   = errors.New("unknown_pricing_policy")
	ErrInvalidElement  = errors.New("invalid_element")
	ErrTooManyElements = errors.New("too_many_elements")
)

// Policy selects which costs a composition pays.
type Policy string

const (
	// PolicyTotal charges element base costs and property surcharges.
	PolicyTotal Policy = "total"
	// PolicyTemplate charges property surcharges only; the template already
	// covers its base elements.
	PolicyTemplate Policy = "template"
)

// Element is one placed element of a composition.
type Element struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// OptionDefinition prices one value of a property.
type OptionDefinition struct {
	Value      string          `json:"value" yaml:"value"`
	CreditCost *credits.Amount `json:"creditCost,omitempty" yaml:"credit_cost"`
}

// PropertyDefinition prices a property either as a flat toggle charged when
// its value is truthy, or per option. Name may be a path.Match pattern such
// as "*Font".
type PropertyDefinition struct {
	Name       string             `json:"name" yaml:"name"`
	CreditCost *credits.Amount    `json:"creditCost,omitempty" yaml:"credit_cost"`
	Options    []OptionDefinition `json:"options,omitempty" yaml:"options"`
}

// ElementCostDefinition is the catalog entry of one element type. The
// wildcard entry carries no base cost.
type ElementCostDefinition struct {
	ElementType string               `json:"elementType" yaml:"element_type"`
	BaseCost    credits.Amount       `json:"baseCost" yaml:"base_cost"`
	Properties  []PropertyDefinition `json:"properties,omitempty" yaml:"properties"`
}

type DetailKind string

const (
	DetailKindBase     DetailKind = "base"
	DetailKindProperty DetailKind = "property"
)

// Detail is one priced line of a breakdown.
type Detail struct {
	ElementID   string         `json:"elementId"`
	ElementType string         `json:"elementType"`
	Kind        DetailKind     `json:"kind"`
	Property    string         `json:"property,omitempty"`
	Value       string         `json:"value,omitempty"`
	Rule        string         `json:"rule,omitempty"`
	Cost        credits.Amount `json:"cost"`
}

// Breakdown is the priced result of a composition.
type Breakdown struct {
	Policy        Policy         `json:"policy"`
	ElementCost   credits.Amount `json:"elementCost"`
	PropertyCosts credits.Amount `json:"propertyCosts"`
	TotalCost     credits.Amount `json:"totalCost"`
	Details       []Detail       `json:"details"`
}
