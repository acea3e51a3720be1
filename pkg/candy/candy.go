package candy

import (
	"errors"
	"fmt"
	"strings"
)

// Type identifies one of the five candies the machine stocks.
type Type int

const (
	FiveStar Type = iota
	MilkyBar
	DairyMilk
	Eclairs
	Ferrero

	typeCount = int(Ferrero) + 1
)

var ErrUnknownType = errors.New("unknown candy type")

// Details is the static metadata attached to a candy type.
type Details struct {
	Name         string
	BaseScore    int
	DefaultCount int // capacity ceiling used for stock percentages
}

type typeInfo struct {
	key     string
	field   string
	details Details
}

// catalog is indexed by Type; every Type has exactly one entry.
var catalog = [typeCount]typeInfo{
	FiveStar:  {key: "fivestar", field: "five_star_stock", details: Details{Name: "5 Star", BaseScore: 10, DefaultCount: 10}},
	MilkyBar:  {key: "milkybar", field: "milky_bar_stock", details: Details{Name: "Milky Bar", BaseScore: 15, DefaultCount: 10}},
	DairyMilk: {key: "dairymilk", field: "dairy_milk_stock", details: Details{Name: "Dairy Milk", BaseScore: 20, DefaultCount: 10}},
	Eclairs:   {key: "eclairs", field: "eclairs_stock", details: Details{Name: "Eclairs", BaseScore: 5, DefaultCount: 10}},
	Ferrero:   {key: "ferrero", field: "ferro_rocher_stock", details: Details{Name: "Ferrero Rocher", BaseScore: 25, DefaultCount: 10}},
}

// All returns every candy type in catalog order.
func All() []Type {
	out := make([]Type, 0, typeCount)
	for i := 0; i < typeCount; i++ {
		out = append(out, Type(i))
	}
	return out
}

func (t Type) Valid() bool { return t >= 0 && int(t) < typeCount }

// String returns the internal key (e.g. "fivestar").
func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("candy(%d)", int(t))
	}
	return catalog[t].key
}

// DetailsOf returns the metadata for t. Invalid types yield the zero Details.
func DetailsOf(t Type) Details {
	if !t.Valid() {
		return Details{}
	}
	return catalog[t].details
}

// APIFieldName maps t to the stock service's field key.
func APIFieldName(t Type) string {
	if !t.Valid() {
		return ""
	}
	return catalog[t].field
}

// ParseType accepts either the internal key or the display name, case-insensitively.
func ParseType(s string) (Type, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for i, info := range catalog {
		if norm == info.key || norm == strings.ToLower(info.details.Name) {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// TypeForField is the inverse of APIFieldName.
func TypeForField(field string) (Type, bool) {
	for i, info := range catalog {
		if info.field == field {
			return Type(i), true
		}
	}
	return 0, false
}
