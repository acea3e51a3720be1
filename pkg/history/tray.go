package history

import (
	"context"
	"sync"

	"github.com/sw33tLie/candyvend/pkg/dispense"
)

// Tray holds dispensed candies until they are eaten or collected, at which
// point they move into the ledger.
type Tray struct {
	mu     sync.Mutex
	units  []dispense.Unit
	ledger *Ledger
}

func NewTray(ledger *Ledger) *Tray {
	return &Tray{ledger: ledger}
}

func (t *Tray) Add(units ...dispense.Unit) {
	t.mu.Lock()
	t.units = append(t.units, units...)
	t.mu.Unlock()
}

// Units returns the candies currently in the tray, in drop order.
func (t *Tray) Units() []dispense.Unit {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]dispense.Unit, len(t.units))
	copy(out, t.units)
	return out
}

func (t *Tray) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.units)
}

// Eat moves the unit with the given id into the ledger.
func (t *Tray) Eat(ctx context.Context, id string) (Entry, bool) {
	t.mu.Lock()
	idx := -1
	for i, u := range t.units {
		if u.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return Entry{}, false
	}
	u := t.units[idx]
	t.units = append(t.units[:idx], t.units[idx+1:]...)
	t.mu.Unlock()

	return t.ledger.Record(ctx, u), true
}

// CollectAll empties the tray into the ledger in drop order.
func (t *Tray) CollectAll(ctx context.Context) []Entry {
	t.mu.Lock()
	units := t.units
	t.units = nil
	t.mu.Unlock()

	out := make([]Entry, 0, len(units))
	for _, u := range units {
		out = append(out, t.ledger.Record(ctx, u))
	}
	return out
}
