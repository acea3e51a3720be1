// Package vending wires the stock repository, dispense sequencer, score
// acquisition and history ledger together for one machine on one floor.
package vending

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sw33tLie/candyvend/pkg/candy"
	"github.com/sw33tLie/candyvend/pkg/dispense"
	"github.com/sw33tLie/candyvend/pkg/history"
	"github.com/sw33tLie/candyvend/pkg/polling"
	"github.com/sw33tLie/candyvend/pkg/scoring"
	"github.com/sw33tLie/candyvend/pkg/stock"
)

// StockSource is the part of the stock repository a session needs.
type StockSource interface {
	FetchStock(ctx context.Context, tier stock.Tier, floor int) (stock.Record, error)
	WriteStockField(ctx context.Context, tier stock.Tier, floor int, t candy.Type, n int) bool
}

// Notifier receives user-facing messages. Presentation is up to the caller.
type Notifier interface {
	Info(msg string)
	Success(msg string)
	Error(msg string)
}

type nopNotifier struct{}

func (nopNotifier) Info(string)    {}
func (nopNotifier) Success(string) {}
func (nopNotifier) Error(string)   {}

// LogNotifier forwards notifications to a logrus logger.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (n LogNotifier) Info(msg string)    { n.Log.Info(msg) }
func (n LogNotifier) Success(msg string) { n.Log.WithField("status", "success").Info(msg) }
func (n LogNotifier) Error(msg string)   { n.Log.Error(msg) }

type Config struct {
	Floor  int
	Stock  StockSource
	Scores scoring.Service

	DispenseInterval time.Duration
	PollInterval     time.Duration
	Rand             *rand.Rand

	// Sink, when set, receives every ledger entry. Sink errors are reported
	// through the notifier and never undo the entry.
	Sink history.Sink
	Now  func() time.Time

	Notifier Notifier
	Log      logrus.FieldLogger
}

// Session holds the explicit per-floor state of one machine: the last known
// stock, the tray of dispensed candies and the eaten history.
type Session struct {
	floor    int
	source   StockSource
	notify   Notifier
	seq      *dispense.Sequencer
	acquirer *polling.Acquirer
	ledger   *history.Ledger
	tray     *history.Tray

	// opMu serializes stock-changing operations: the counts a dispense
	// starts from and the counts it stores must not interleave with another.
	opMu sync.Mutex

	mu    sync.Mutex
	stock stock.Record
}

func New(cfg Config) (*Session, error) {
	if err := stock.ValidateFloor(stock.Machine, cfg.Floor); err != nil {
		return nil, err
	}
	if cfg.Stock == nil {
		return nil, errors.New("vending: no stock source configured")
	}
	if cfg.Scores == nil {
		return nil, errors.New("vending: no scoring service configured")
	}

	s := &Session{
		floor:  cfg.Floor,
		source: cfg.Stock,
		notify: cfg.Notifier,
		stock:  stock.Fallback(stock.Machine, cfg.Floor),
	}
	if s.notify == nil {
		s.notify = nopNotifier{}
	}

	var seqLog dispense.Logger
	var pollLog polling.Logger
	if cfg.Log != nil {
		seqLog, pollLog = cfg.Log, cfg.Log
	}

	s.seq = dispense.New(dispense.Config{
		Interval: cfg.DispenseInterval,
		Rand:     cfg.Rand,
		Writer:   cfg.Stock,
		Tier:     stock.Machine,
		Log:      seqLog,
	})
	s.acquirer = &polling.Acquirer{
		Service:  cfg.Scores,
		Interval: cfg.PollInterval,
		Log:      pollLog,
	}

	var opts []history.Option
	if cfg.Now != nil {
		opts = append(opts, history.WithClock(cfg.Now))
	}
	if cfg.Sink != nil {
		opts = append(opts, history.WithSink(cfg.Sink, func(err error) {
			s.notify.Error(fmt.Sprintf("Saving history failed: %v", err))
		}))
	}
	s.ledger = history.NewLedger(opts...)
	s.tray = history.NewTray(s.ledger)
	return s, nil
}

func (s *Session) Floor() int { return s.floor }

// Refresh reloads the machine stock for this floor. A degraded read keeps
// the session usable on default counts and is reported through the notifier.
func (s *Session) Refresh(ctx context.Context) (stock.Record, error) {
	rec, err := s.source.FetchStock(ctx, stock.Machine, s.floor)
	if err != nil {
		s.notify.Error(err.Error())
		return stock.Record{}, err
	}
	if rec.Degraded {
		s.notify.Error(fmt.Sprintf("Could not load stock for floor %d, using default counts", s.floor))
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.mu.Lock()
	s.stock = rec
	s.mu.Unlock()
	return rec, nil
}

// Stock returns the last known machine stock.
func (s *Session) Stock() stock.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock
}

func (s *Session) setCounts(c candy.Counts) {
	s.mu.Lock()
	s.stock.Counts = c
	s.mu.Unlock()
}

// PlayResult is what one play produced.
type PlayResult struct {
	Score   polling.Result
	Outcome dispense.Outcome
}

// Play acquires a score for email, converts it to a candy count and runs a
// dispense batch against the current stock. Dispensed candies land in the
// tray; onUnit, if set, sees each one as it drops.
func (s *Session) Play(ctx context.Context, email string, onUnit func(dispense.Unit)) (PlayResult, error) {
	if s.seq.Busy() {
		s.notify.Error("Dispensing in progress, please wait")
		return PlayResult{}, dispense.ErrBusy
	}

	s.notify.Info("Submitting score request for " + email)
	res, err := s.acquirer.Start(ctx, email).Wait(ctx)
	if err != nil {
		s.notify.Error(fmt.Sprintf("Score acquisition failed: %v", err))
		return PlayResult{}, err
	}
	s.notify.Success(fmt.Sprintf("Score %d earns %d candies", res.Score, res.Count))

	if !s.opMu.TryLock() {
		s.notify.Error("Dispensing in progress, please wait")
		return PlayResult{Score: res}, dispense.ErrBusy
	}
	defer s.opMu.Unlock()

	out, err := s.seq.Run(ctx, s.floor, s.Stock().Counts, res.Count, func(u dispense.Unit) {
		s.tray.Add(u)
		if onUnit != nil {
			onUnit(u)
		}
	})
	if err != nil {
		s.notify.Error("Dispensing in progress, please wait")
		return PlayResult{Score: res}, err
	}
	s.setCounts(out.Remaining)
	s.report(out)
	return PlayResult{Score: res, Outcome: out}, nil
}

func (s *Session) report(out dispense.Outcome) {
	switch {
	case out.NoStock || out.Partial:
		s.notify.Info(out.Message())
	default:
		s.notify.Success(fmt.Sprintf("Dispensed %d candies", out.Produced))
	}
	if n := out.FailedWrites(); n > 0 {
		s.notify.Error(fmt.Sprintf("%d stock updates could not be saved", n))
	}
}

// CancelPlay stops the score acquisition in progress, if any.
func (s *Session) CancelPlay() {
	if cur := s.acquirer.Current(); cur != nil {
		cur.Cancel()
	}
}

// DispenseOne drops a single candy of type t into the tray. It returns nil
// when that type is out of stock.
func (s *Session) DispenseOne(ctx context.Context, t candy.Type) (*dispense.Unit, error) {
	if !s.opMu.TryLock() {
		s.notify.Error("Dispensing in progress, please wait")
		return nil, dispense.ErrBusy
	}
	defer s.opMu.Unlock()

	next, u, err := s.seq.DispenseOne(ctx, s.floor, s.Stock().Counts, t)
	if err != nil {
		s.notify.Error(err.Error())
		return nil, err
	}
	if u == nil {
		s.notify.Info(fmt.Sprintf("No %s left", candy.DetailsOf(t).Name))
		return nil, nil
	}
	s.setCounts(next)
	s.tray.Add(*u)
	return u, nil
}

func (s *Session) Eat(ctx context.Context, id string) (history.Entry, bool) {
	e, ok := s.tray.Eat(ctx, id)
	if ok {
		s.notify.Success(fmt.Sprintf("Ate a %s (+%d)", candy.DetailsOf(e.Type).Name, e.Score))
	}
	return e, ok
}

func (s *Session) CollectAll(ctx context.Context) []history.Entry {
	entries := s.tray.CollectAll(ctx)
	if len(entries) > 0 {
		s.notify.Success(fmt.Sprintf("Collected %d candies", len(entries)))
	}
	return entries
}

func (s *Session) Ledger() *history.Ledger { return s.ledger }
func (s *Session) Tray() *history.Tray     { return s.tray }

// LowStock lists the types whose stock is below threshold percent of their
// default count, lowest first.
func (s *Session) LowStock(threshold int) []candy.Type {
	counts := s.Stock().Counts
	var low []candy.Type
	for _, t := range candy.All() {
		if counts.Percent(t) < threshold {
			low = append(low, t)
		}
	}
	sort.SliceStable(low, func(i, j int) bool {
		return counts.Percent(low[i]) < counts.Percent(low[j])
	})
	return low
}
