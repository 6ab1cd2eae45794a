package credits

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scale is the number of Amount units in one credit.
const Scale = 100

var ErrInvalidAmount = errors.New("invalid_credit_amount")

// Amount is a signed credit quantity in hundredths of a credit, so sums are
// exact. JSON and YAML carry it as a decimal number ("1.5").
type Amount int64

// Whole returns n full credits.
func Whole(n int64) Amount { return Amount(n * Scale) }

// FromFloat rounds f to the nearest hundredth.
func FromFloat(f float64) (Amount, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidAmount
	}
	scaled := math.Round(f * Scale)
	if scaled > math.MaxInt64 || scaled < math.MinInt64 {
		return 0, ErrInvalidAmount
	}
	return Amount(scaled), nil
}

// Parse reads a decimal with at most two fractional digits.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, ErrInvalidAmount
		}
		return FromFloat(f)
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if intPart == "" && (!hasFrac || fracPart == "") {
		return 0, ErrInvalidAmount
	}
	if len(fracPart) > 2 {
		return 0, fmt.Errorf("%w: more than two decimal places", ErrInvalidAmount)
	}
	for len(fracPart) < 2 {
		fracPart += "0"
	}
	if intPart == "" {
		intPart = "0"
	}

	whole, err := strconv.ParseUint(intPart, 10, 63)
	if err != nil || whole > math.MaxInt64/Scale-1 {
		return 0, ErrInvalidAmount
	}
	frac, err := strconv.ParseUint(fracPart, 10, 8)
	if err != nil {
		return 0, ErrInvalidAmount
	}

	v := Amount(int64(whole)*Scale + int64(frac))
	if neg {
		v = -v
	}
	return v, nil
}

// Float64 is for display only.
func (a Amount) Float64() float64 { return float64(a) / Scale }

func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole, frac := v/Scale, v%Scale
	if frac == 0 {
		return sign + strconv.FormatInt(whole, 10)
	}
	out := fmt.Sprintf("%s%d.%02d", sign, whole, frac)
	return strings.TrimRight(out, "0")
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "null" {
		return nil
	}
	v, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	v, err := Parse(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*a = v
	return nil
}

// Ptr returns a pointer to a copy of a.
func Ptr(a Amount) *Amount { return &a }
