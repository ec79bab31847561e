package enums

import "strings"

// Category is the shop and request product category. Unknown values coerce
// to Other, which doubles as the wildcard for lead matching.
type Category string

const (
	CategorySports      Category = "Sports"
	CategoryGrocery     Category = "Grocery"
	CategoryElectronics Category = "Electronics"
	CategoryPharmacy    Category = "Pharmacy"
	CategoryFashion     Category = "Fashion & Apparel"
	CategoryFood        Category = "Food & Bakery"
	CategoryBooks       Category = "Books & Stationery"
	CategoryHardware    Category = "Hardware"
	CategoryHomeDecor   Category = "Home Decor"
	CategoryOther       Category = "Other"
)

var validCategories = []Category{
	CategorySports,
	CategoryGrocery,
	CategoryElectronics,
	CategoryPharmacy,
	CategoryFashion,
	CategoryFood,
	CategoryBooks,
	CategoryHardware,
	CategoryHomeDecor,
	CategoryOther,
}

// Categories returns the category enumeration in display order.
func Categories() []Category {
	out := make([]Category, len(validCategories))
	copy(out, validCategories)
	return out
}

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}

// IsValid reports whether the category is one of the fixed ten.
func (c Category) IsValid() bool {
	for _, candidate := range validCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// NormalizeCategory matches case-insensitively and falls back to Other.
func NormalizeCategory(value string) Category {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range validCategories {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate
		}
	}
	return CategoryOther
}
