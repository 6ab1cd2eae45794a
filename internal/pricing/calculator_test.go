package pricing

import (
	"math/rand"
	"testing"

	"github.com/smallbiznis/creditgate/internal/pricing/domain"
	"github.com/smallbiznis/creditgate/pkg/credits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleComposition() []domain.Element {
	return []domain.Element{
		{ID: "title", Type: "text", Properties: map[string]any{"titleFont": "dancing", "gradient": true}},
		{ID: "song", Type: "music", Properties: map[string]any{"customUpload": true, "animation": "hearts"}},
		{ID: "clock", Type: "countdown", Properties: map[string]any{"confetti": "false", "shadow": true}},
		{ID: "photo", Type: "image", Properties: map[string]any{"frame": "Gold", "filter": "none"}},
		{ID: "x", Type: "hologram", Properties: map[string]any{"gradient": true}},
	}
}

func TestPremiumFontAndGradientOnFreeElement(t *testing.T) {
	c := DefaultCatalog()
	got := c.CalculateTotalCreditCost([]domain.Element{
		{ID: "e1", Type: "text", Properties: map[string]any{"titleFont": "dancing", "gradient": true}},
	})

	assert.Equal(t, credits.Amount(0), got.ElementCost)
	assert.Equal(t, credits.Whole(1), got.TotalCost)
	require.Len(t, got.Details, 2)
	assert.Equal(t, "gradient", got.Details[0].Property)
	assert.Equal(t, "titleFont", got.Details[1].Property)
	assert.Equal(t, "*.*Font", got.Details[1].Rule)
}

func TestDeclaredOptionIsNotChargedTwice(t *testing.T) {
	c := DefaultCatalog()
	got := c.CalculateTotalCreditCost([]domain.Element{
		{ID: "e1", Type: "text", Properties: map[string]any{"fontFamily": "pacifico"}},
	})

	assert.Equal(t, credits.Amount(50), got.TotalCost)
	require.Len(t, got.Details, 1)
	assert.Equal(t, "text.fontFamily", got.Details[0].Rule)
}

func TestWildcardCatchesUndeclaredValues(t *testing.T) {
	c := DefaultCatalog()
	got := c.CalculateTotalCreditCost([]domain.Element{
		{ID: "e1", Type: "image", Properties: map[string]any{"captionFont": "lobster", "entryAnimation": "snow"}},
	})
	assert.Equal(t, credits.Whole(1), got.PropertyCosts)
}

func TestUnknownElementTypeHasNoBaseCost(t *testing.T) {
	c := DefaultCatalog()
	got := c.CalculateTotalCreditCost([]domain.Element{
		{ID: "e1", Type: "hologram", Properties: map[string]any{"size": "xl"}},
	})
	assert.Equal(t, credits.Amount(0), got.TotalCost)
	assert.Empty(t, got.Details)
}

func TestSampleTotals(t *testing.T) {
	c := DefaultCatalog()
	got := c.CalculateTotalCreditCost(sampleComposition())

	// base: music 1 + countdown 0.5
	assert.Equal(t, credits.Amount(150), got.ElementCost)
	// titleFont 0.5, gradient 0.5, customUpload 1, animation 0.5, shadow 0.25, frame 0.5, hologram gradient 0.5
	assert.Equal(t, credits.Amount(375), got.PropertyCosts)
	assert.Equal(t, credits.Amount(525), got.TotalCost)

	tpl := c.CalculateTemplateCreditCost(sampleComposition())
	assert.Equal(t, credits.Amount(0), tpl.ElementCost)
	assert.Equal(t, got.PropertyCosts, tpl.TotalCost)
}

func TestOrderIndependence(t *testing.T) {
	c := DefaultCatalog()
	elements := sampleComposition()
	want := c.CalculateTotalCreditCost(elements)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]domain.Element(nil), elements...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, c.CalculateTotalCreditCost(shuffled))
	}
}

func TestTemplateNeverExceedsTotal(t *testing.T) {
	c := DefaultCatalog()
	types := []string{"text", "image", "music", "video", "countdown", "gallery", "background", "sticker", "other"}
	props := []map[string]any{
		nil,
		{"gradient": true},
		{"customUpload": true, "shadow": "yes"},
		{"animation": "fireworks", "bodyFont": "satisfy"},
		{"autoplay": 1.0, "animated": true},
	}

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 50; i++ {
		var elements []domain.Element
		n := rng.Intn(8)
		for j := 0; j < n; j++ {
			elements = append(elements, domain.Element{
				ID:         string(rune('a' + j)),
				Type:       types[rng.Intn(len(types))],
				Properties: props[rng.Intn(len(props))],
			})
		}
		total := c.CalculateTotalCreditCost(elements)
		tpl := c.CalculateTemplateCreditCost(elements)
		assert.LessOrEqual(t, tpl.TotalCost, total.TotalCost)
		assert.Equal(t, total.ElementCost+total.PropertyCosts, total.TotalCost)
	}
}

func TestCalculatePolicy(t *testing.T) {
	c := DefaultCatalog()
	elements := []domain.Element{{ID: "v", Type: "video"}}

	got, err := c.Calculate(domain.PolicyTotal, elements)
	require.NoError(t, err)
	assert.Equal(t, credits.Whole(2), got.TotalCost)

	got, err = c.Calculate(domain.PolicyTemplate, elements)
	require.NoError(t, err)
	assert.Equal(t, credits.Amount(0), got.TotalCost)

	_, err = c.Calculate("bundle", elements)
	assert.ErrorIs(t, err, domain.ErrUnknownPolicy)
}

func TestValidateElements(t *testing.T) {
	assert.NoError(t, ValidateElements(nil))
	assert.ErrorIs(t, ValidateElements([]domain.Element{{ID: "a"}}), domain.ErrInvalidElement)
	assert.ErrorIs(t, ValidateElements(make([]domain.Element, MaxElements+1)), domain.ErrTooManyElements)
}
