// Package gamedata holds the process-wide immutable game configuration: the
// rarity tables, the enhancement probability and severity tables, and the shop
// catalog. Loaded once; never mutated at runtime.
package gamedata

// StartingGold is granted to every newly registered account.
const StartingGold int64 = 100

// Rarities in ascending order of value.
var Rarities = []string{"gray", "white", "green", "blue", "purple", "gold"}

// RarityMultipliers scale the base attribute roll per rarity.
var RarityMultipliers = map[string]float64{
	"gray":   0.8,
	"white":  1.0,
	"green":  1.3,
	"blue":   1.7,
	"purple": 2.2,
	"gold":   3.0,
}

// Attribute base roll range (inclusive), before the rarity multiplier.
const (
	AttributeRollMin = 10
	AttributeRollMax = 100
)

// Enhancement bounds and the attribute growth applied on success.
const (
	MaxEnhancementLevel = 20

	GrowthFactorMin = 1.05
	GrowthFactorMax = 1.12
)

// Protection token rules: the token item id, and the minimum pre-attempt
// level at which a token can downgrade a reset/explosion outcome.
const (
	ProtectionItemID   = "protection_charm"
	ProtectionMinLevel = 16
)

// EnhanceSuccessRate returns the success probability at the given current
// level. Monotonically non-increasing by level band.
func EnhanceSuccessRate(level int) float64 {
	switch {
	case level <= 5:
		return 0.80
	case level <= 10:
		return 0.60
	case level <= 15:
		return 0.40
	case level <= 18:
		return 0.25
	default:
		return 0.10
	}
}

// FailureSeverity classifies what happens to an instance on a failed attempt.
type FailureSeverity int

const (
	FailureNone FailureSeverity = iota
	FailureMinusOne
	FailureMinusTwo
	FailureReset
	FailureExplosion
)

// EnhanceFailureSeverity returns the failure severity for the pre-attempt
// level.
func EnhanceFailureSeverity(level int) FailureSeverity {
	switch {
	case level <= 5:
		return FailureNone
	case level <= 10:
		return FailureMinusOne
	case level <= 15:
		return FailureMinusTwo
	case level <= 18:
		return FailureReset
	default:
		return FailureExplosion
	}
}

// CatalogItem is one purchasable shop entry.
type CatalogItem struct {
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	MaxStack int    `json:"max_stack"`
}

// Catalog is the fixed shop inventory, keyed by item id.
var Catalog = map[string]CatalogItem{
	"potion_small": {ItemID: "potion_small", Name: "Small Potion", Price: 50, MaxStack: 99},
	"potion_big":   {ItemID: "potion_big", Name: "Big Potion", Price: 150, MaxStack: 99},
	"protection_charm": {
		ItemID:   "protection_charm",
		Name:     "Protection Charm",
		Price:    1200,
		MaxStack: 20,
	},
	"whetstone": {ItemID: "whetstone", Name: "Whetstone", Price: 200, MaxStack: 99},
}
