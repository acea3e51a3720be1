package dispense

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sw33tLie/candyvend/pkg/candy"
	"github.com/sw33tLie/candyvend/pkg/stock"
)

const DefaultInterval = 300 * time.Millisecond

// Tray geometry used to scatter dropped candies, in percent of the tray.
const (
	trayMinX    = 10.0
	trayMaxX    = 90.0
	trayMaxY    = 20.0
	maxRotation = 360.0
)

const (
	NoStockMsg   = "No candies left to dispense"
	partialMsgFm = "Only %d of %d candies could be dispensed"
)

// ErrBusy is returned when a batch or manual dispense is already running.
var ErrBusy = errors.New("dispenser is busy")

// Logger abstracts logging so callers can pass utils.Log or nothing.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// StockWriter persists one changed count. *stock.Repository satisfies it.
type StockWriter interface {
	WriteStockField(ctx context.Context, tier stock.Tier, floor int, t candy.Type, n int) bool
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Unit is one dispensed candy.
type Unit struct {
	ID       string     `json:"id"`
	Type     candy.Type `json:"type"`
	Position Position   `json:"position"`
	Rotation float64    `json:"rotation"`
}

// FieldWrite records the outcome of persisting one changed count.
type FieldWrite struct {
	Type  candy.Type
	Count int
	OK    bool
}

// Outcome summarizes a finished batch.
type Outcome struct {
	Target    int
	Produced  int
	Units     []Unit
	Remaining candy.Counts
	Writes    []FieldWrite

	// NoStock is set when nothing was eligible at the start; no ticks ran.
	NoStock bool
	// Partial is set when stock ran out before the target was reached.
	Partial bool
}

// Message is the informational text to show for a short batch, or "".
func (o Outcome) Message() string {
	switch {
	case o.NoStock:
		return NoStockMsg
	case o.Partial:
		return fmt.Sprintf(partialMsgFm, o.Produced, o.Target)
	}
	return ""
}

// FailedWrites counts writes that did not reach the stock service.
func (o Outcome) FailedWrites() int {
	n := 0
	for _, w := range o.Writes {
		if !w.OK {
			n++
		}
	}
	return n
}

type Config struct {
	Interval time.Duration
	Rand     *rand.Rand // defaults to a randomly seeded PCG
	Writer   StockWriter
	Tier     stock.Tier // tier written to; Machine by default
	Log      Logger
}

// Sequencer runs paced, randomized dispense batches against a machine's stock.
// At most one batch or manual dispense runs at a time.
type Sequencer struct {
	interval time.Duration
	writer   StockWriter
	tier     stock.Tier
	log      Logger

	busy atomic.Bool

	randMu sync.Mutex
	rng    *rand.Rand
}

func New(cfg Config) *Sequencer {
	s := &Sequencer{
		interval: cfg.Interval,
		writer:   cfg.Writer,
		tier:     cfg.Tier,
		log:      cfg.Log,
		rng:      cfg.Rand,
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.log == nil {
		s.log = nopLogger{}
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// Busy reports whether a batch is in progress.
func (s *Sequencer) Busy() bool { return s.busy.Load() }

// Run dispenses up to target units from the given stock, one per tick,
// calling emit for each unit in tick order. Once started a batch runs until
// the target is met or stock runs out; ctx only scopes the final writes.
// Every type whose count changed is then written once.
func (s *Sequencer) Run(ctx context.Context, floor int, current candy.Counts, target int, emit func(Unit)) (Outcome, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return Outcome{}, ErrBusy
	}
	defer s.busy.Store(false)

	out := Outcome{Target: target, Remaining: current}
	if len(current.Eligible()) == 0 {
		out.NoStock = true
		s.log.Infof("Floor %d: %s", floor, NoStockMsg)
		return out, nil
	}

	working := current
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		eligible := working.Eligible()
		if out.Produced >= target || len(eligible) == 0 {
			break
		}
		<-ticker.C

		t := eligible[s.intN(len(eligible))]
		next, ok := working.Decrement(t)
		if !ok {
			continue
		}
		working = next

		u := s.newUnit(t)
		out.Units = append(out.Units, u)
		out.Produced++
		if emit != nil {
			emit(u)
		}
		s.log.Debugf("Floor %d: dropped %s (%d/%d)", floor, t, out.Produced, target)
	}

	out.Remaining = working
	out.Partial = out.Produced < target
	out.Writes = s.persist(ctx, floor, current, working)
	if n := out.FailedWrites(); n > 0 {
		s.log.Warnf("Floor %d: %d stock writes failed after batch; local counts stay authoritative", floor, n)
	}
	return out, nil
}

// DispenseOne takes a single unit of t outside a batch and persists that
// field right away. A type with no stock is a no-op and returns a nil unit.
func (s *Sequencer) DispenseOne(ctx context.Context, floor int, current candy.Counts, t candy.Type) (candy.Counts, *Unit, error) {
	if !t.Valid() {
		return current, nil, fmt.Errorf("%w: %d", candy.ErrUnknownType, int(t))
	}
	if !s.busy.CompareAndSwap(false, true) {
		return current, nil, ErrBusy
	}
	defer s.busy.Store(false)

	next, ok := current.Decrement(t)
	if !ok {
		s.log.Infof("Floor %d: no %s left", floor, t)
		return current, nil, nil
	}
	u := s.newUnit(t)
	if s.writer != nil && !s.writer.WriteStockField(ctx, s.tier, floor, t, next.Get(t)) {
		s.log.Warnf("Floor %d: persisting %s=%d failed", floor, t, next.Get(t))
	}
	return next, &u, nil
}

func (s *Sequencer) persist(ctx context.Context, floor int, before, after candy.Counts) []FieldWrite {
	changed := before.Diff(after)
	writes := make([]FieldWrite, 0, len(changed))
	for _, t := range changed {
		w := FieldWrite{Type: t, Count: after.Get(t)}
		if s.writer != nil {
			w.OK = s.writer.WriteStockField(ctx, s.tier, floor, t, w.Count)
		}
		writes = append(writes, w)
	}
	return writes
}

func (s *Sequencer) newUnit(t candy.Type) Unit {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return Unit{
		ID:   uuid.NewString(),
		Type: t,
		Position: Position{
			X: trayMinX + s.rng.Float64()*(trayMaxX-trayMinX),
			Y: s.rng.Float64() * trayMaxY,
		},
		Rotation: s.rng.Float64() * maxRotation,
	}
}

func (s *Sequencer) intN(n int) int {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.rng.IntN(n)
}
