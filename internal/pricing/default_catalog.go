package pricing

import (
	"github.com/smallbiznis/creditgate/internal/pricing/domain"
	"github.com/smallbiznis/creditgate/pkg/credits"
)

func cost(hundredths int64) *credits.Amount {
	return credits.Ptr(credits.Amount(hundredths))
}

func options(c int64, values ...string) []domain.OptionDefinition {
	out := make([]domain.OptionDefinition, 0, len(values))
	for _, v := range values {
		out = append(out, domain.OptionDefinition{Value: v, CreditCost: cost(c)})
	}
	return out
}

var premiumFonts = []string{"dancing", "pacifico", "greatvibes", "lobster", "satisfy"}

var premiumAnimations = []string{"sparkle", "confetti", "hearts", "snow", "fireworks"}

// DefaultDefinitions is the built-in catalog.
func DefaultDefinitions() []domain.ElementCostDefinition {
	return []domain.ElementCostDefinition{
		{
			ElementType: "text",
			Properties: []domain.PropertyDefinition{
				{Name: "fontFamily", Options: options(50, premiumFonts...)},
				{Name: "textEffect", Options: options(50, "neon", "glitter", "typewriter")},
			},
		},
		{
			ElementType: "image",
			Properties: []domain.PropertyDefinition{
				{Name: "frame", Options: options(50, "gold", "floral", "polaroid")},
				{Name: "filter", Options: options(25, "vintage", "dreamy")},
			},
		},
		{
			ElementType: "music",
			BaseCost:    credits.Whole(1),
			Properties: []domain.PropertyDefinition{
				{Name: "customUpload", CreditCost: cost(100)},
			},
		},
		{
			ElementType: "video",
			BaseCost:    credits.Whole(2),
		},
		{
			ElementType: "countdown",
			BaseCost:    50,
			Properties: []domain.PropertyDefinition{
				{Name: "confetti", CreditCost: cost(50)},
			},
		},
		{
			ElementType: "gallery",
			BaseCost:    credits.Whole(1),
			Properties: []domain.PropertyDefinition{
				{Name: "autoplay", CreditCost: cost(25)},
			},
		},
		{
			ElementType: "background",
			Properties: []domain.PropertyDefinition{
				{Name: "animated", CreditCost: cost(100)},
			},
		},
		{ElementType: "sticker"},
		{
			ElementType: domain.WildcardElementType,
			Properties: []domain.PropertyDefinition{
				{Name: "*Font", Options: options(50, premiumFonts...)},
				{Name: "animation", Options: options(50, premiumAnimations...)},
				{Name: "*Animation", Options: options(50, premiumAnimations...)},
				{Name: "gradient", CreditCost: cost(50)},
				{Name: "shadow", CreditCost: cost(25)},
			},
		},
	}
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultDefinitions())
	if err != nil {
		panic(err)
	}
	return c
}
