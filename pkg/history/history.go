package history

import (
	"context"
	"sync"
	"time"

	"github.com/sw33tLie/candyvend/pkg/candy"
	"github.com/sw33tLie/candyvend/pkg/dispense"
)

// Entry is one consumed candy. Entries are never edited or removed.
type Entry struct {
	ID        string     `json:"id"`
	Type      candy.Type `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Score     int        `json:"score"`
}

// Summary aggregates entries of one type.
type Summary struct {
	Count      int
	TotalScore int
}

// Sink receives every recorded entry, e.g. to mirror the ledger to disk.
type Sink interface {
	AppendHistory(ctx context.Context, e Entry) error
}

// Ledger is the append-only record of consumed candies, most recent first.
type Ledger struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
	sink    Sink
	onSink  func(error)
}

type Option func(*Ledger)

// WithClock overrides time.Now for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithSink mirrors each entry to s. Sink failures go to onErr and never
// block recording.
func WithSink(s Sink, onErr func(error)) Option {
	return func(l *Ledger) {
		l.sink = s
		l.onSink = onErr
	}
}

func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Record appends u at the head of the ledger, scored at its base score.
func (l *Ledger) Record(ctx context.Context, u dispense.Unit) Entry {
	e := Entry{
		ID:        u.ID,
		Type:      u.Type,
		Timestamp: l.now(),
		Score:     candy.DetailsOf(u.Type).BaseScore,
	}

	l.mu.Lock()
	l.entries = append([]Entry{e}, l.entries...)
	l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.AppendHistory(ctx, e); err != nil && l.onSink != nil {
			l.onSink(err)
		}
	}
	return e
}

// Entries returns a copy of the ledger, most recent first.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// TotalScore sums every entry's score. It is recomputed on each call.
func (l *Ledger) TotalScore() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0
	for _, e := range l.entries {
		total += e.Score
	}
	return total
}

func (l *Ledger) GroupByType() map[candy.Type]Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[candy.Type]Summary)
	for _, e := range l.entries {
		s := out[e.Type]
		s.Count++
		s.TotalScore += e.Score
		out[e.Type] = s
	}
	return out
}
