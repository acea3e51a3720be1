package candy

// Counts is a per-type stock count. It is a value type: every mutating
// helper returns a new Counts and leaves the receiver untouched.
type Counts [typeCount]int

// Defaults returns a Counts where every type is at its DefaultCount.
func Defaults() Counts {
	var c Counts
	for i, info := range catalog {
		c[i] = info.details.DefaultCount
	}
	return c
}

func (c Counts) Get(t Type) int {
	if !t.Valid() {
		return 0
	}
	return c[t]
}

// With returns a copy of c with t set to n. Negative values clamp to 0.
func (c Counts) With(t Type, n int) Counts {
	if !t.Valid() {
		return c
	}
	if n < 0 {
		n = 0
	}
	c[t] = n
	return c
}

// Decrement takes one unit of t. ok is false, and c is returned unchanged,
// when t has no stock left.
func (c Counts) Decrement(t Type) (Counts, bool) {
	if !t.Valid() || c[t] <= 0 {
		return c, false
	}
	c[t]--
	return c, true
}

func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Eligible lists the types with count > 0, in catalog order.
func (c Counts) Eligible() []Type {
	var out []Type
	for i, n := range c {
		if n > 0 {
			out = append(out, Type(i))
		}
	}
	return out
}

// Diff lists the types whose count differs between c and other.
func (c Counts) Diff(other Counts) []Type {
	var out []Type
	for i := range c {
		if c[i] != other[i] {
			out = append(out, Type(i))
		}
	}
	return out
}

// Percent is the stock level of t relative to its DefaultCount, capped at 100.
func (c Counts) Percent(t Type) int {
	capacity := DetailsOf(t).DefaultCount
	if capacity <= 0 {
		return 0
	}
	p := c.Get(t) * 100 / capacity
	if p > 100 {
		p = 100
	}
	return p
}

// Map renders c keyed by internal type key; handy for JSON output.
func (c Counts) Map() map[string]int {
	out := make(map[string]int, typeCount)
	for i, n := range c {
		out[catalog[i].key] = n
	}
	return out
}
