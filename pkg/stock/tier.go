package stock

import (
	"errors"
	"fmt"
	"strings"
)

// Tier is an inventory scope: the vending machine on a floor, the floor
// manager's backstock, or the central vendor warehouse.
type Tier int

const (
	Machine Tier = iota
	Floor
	Vendor
)

const (
	MinFloor = 1
	MaxFloor = 3
)

var (
	ErrInvalidFloor = errors.New("invalid floor")
	ErrInvalidTier  = errors.New("invalid stock tier")
)

func (t Tier) String() string {
	switch t {
	case Machine:
		return "machine"
	case Floor:
		return "floor"
	case Vendor:
		return "vendor"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Table is the table_name the stock service uses for the tier.
func (t Tier) Table() string {
	switch t {
	case Machine:
		return "machine_stock"
	case Floor:
		return "floor_stock"
	case Vendor:
		return "vendor_stock"
	}
	return ""
}

// Floored reports whether the tier is scoped by floor number.
func (t Tier) Floored() bool { return t == Machine || t == Floor }

func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "machine", "machine_stock":
		return Machine, nil
	case "floor", "floor-manager", "floor_stock":
		return Floor, nil
	case "vendor", "vendor_stock":
		return Vendor, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTier, s)
}

// TierForTable maps a table_name back to its tier.
func TierForTable(table string) (Tier, bool) {
	for _, t := range []Tier{Machine, Floor, Vendor} {
		if t.Table() == table {
			return t, true
		}
	}
	return 0, false
}

// ValidateFloor rejects scopes the stock service does not know about.
// Floored tiers need a floor in MinFloor..MaxFloor; the vendor tier takes none.
func ValidateFloor(tier Tier, floor int) error {
	switch {
	case tier.Floored():
		if floor < MinFloor || floor > MaxFloor {
			return fmt.Errorf("%w: %d (want %d-%d)", ErrInvalidFloor, floor, MinFloor, MaxFloor)
		}
	case tier == Vendor:
		if floor != 0 {
			return fmt.Errorf("%w: vendor stock is not scoped by floor", ErrInvalidFloor)
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidTier, int(tier))
	}
	return nil
}
