package vending

import (
	"context"
	"math/rand/v2"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sw33tLie/candyvend/internal/server"
	"github.com/sw33tLie/candyvend/pkg/candy"
	"github.com/sw33tLie/candyvend/pkg/dispense"
	"github.com/sw33tLie/candyvend/pkg/scoring"
	"github.com/sw33tLie/candyvend/pkg/stock"
	"github.com/sw33tLie/candyvend/pkg/storage"
	"github.com/sw33tLie/candyvend/pkg/whttp"
)

type recordingNotifier struct {
	mu      sync.Mutex
	info    []string
	success []string
	errs    []string
}

func (n *recordingNotifier) Info(msg string)    { n.mu.Lock(); n.info = append(n.info, msg); n.mu.Unlock() }
func (n *recordingNotifier) Success(msg string) { n.mu.Lock(); n.success = append(n.success, msg); n.mu.Unlock() }
func (n *recordingNotifier) Error(msg string)   { n.mu.Lock(); n.errs = append(n.errs, msg); n.mu.Unlock() }

type fakeStock struct {
	rec    stock.Record
	err    error
	writes int
}

func (f *fakeStock) FetchStock(ctx context.Context, tier stock.Tier, floor int) (stock.Record, error) {
	return f.rec, f.err
}

func (f *fakeStock) WriteStockField(ctx context.Context, tier stock.Tier, floor int, t candy.Type, n int) bool {
	f.writes++
	return true
}

// lockedStock is fakeStock safe for concurrent writers.
type lockedStock struct {
	mu  sync.Mutex
	rec stock.Record
}

func (f *lockedStock) FetchStock(ctx context.Context, tier stock.Tier, floor int) (stock.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec, nil
}

func (f *lockedStock) WriteStockField(ctx context.Context, tier stock.Tier, floor int, t candy.Type, n int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rec.Counts = f.rec.Counts.With(t, n)
	return true
}

type fixedScore struct{ raw string }

func (f fixedScore) Register(ctx context.Context, email string) (string, error) { return "sys-1", nil }
func (f fixedScore) FetchScore(ctx context.Context, email string) (string, bool, error) {
	return f.raw, true, nil
}

func newEmulatorSession(t *testing.T, notifier Notifier) (*Session, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "candyvend.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Seed(context.Background(), "Sweet Supply Co", 5))

	srv := httptest.NewServer(server.New(db, server.Config{AutoScore: true, Rand: rand.New(rand.NewPCG(3, 4))}).Handler())
	t.Cleanup(srv.Close)

	client, err := whttp.NewClient(whttp.ClientOptions{})
	require.NoError(t, err)

	s, err := New(Config{
		Floor:            2,
		Stock:            stock.New(srv.URL, client),
		Scores:           scoring.New(srv.URL, client),
		DispenseInterval: time.Millisecond,
		PollInterval:     5 * time.Millisecond,
		Rand:             rand.New(rand.NewPCG(7, 8)),
		Sink:             storage.HistorySink{DB: db, Floor: 2},
		Notifier:         notifier,
	})
	require.NoError(t, err)
	return s, db
}

func TestNewRejectsInvalidFloor(t *testing.T) {
	_, err := New(Config{Floor: 4, Stock: &fakeStock{}, Scores: fixedScore{}})
	assert.ErrorIs(t, err, stock.ErrInvalidFloor)
}

func TestPlayEndToEnd(t *testing.T) {
	ctx := context.Background()
	notes := &recordingNotifier{}
	s, db := newEmulatorSession(t, notes)

	_, err := s.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, candy.Defaults(), s.Stock().Counts)

	var dropped []dispense.Unit
	res, err := s.Play(ctx, "player@example.com", func(u dispense.Unit) { dropped = append(dropped, u) })
	require.NoError(t, err)
	n := res.Score.Count
	assert.Contains(t, []int{2, 4, 6, 8, 10}, n)
	assert.Equal(t, n, res.Outcome.Produced)
	assert.False(t, res.Outcome.Partial)
	assert.Len(t, dropped, n)
	assert.Equal(t, n, s.Tray().Len())
	assert.Equal(t, candy.Defaults().Total()-n, s.Stock().Counts.Total())

	// The emulator saw the decrements.
	rows, err := db.GetStock(ctx, stock.Machine)
	require.NoError(t, err)
	assert.Equal(t, s.Stock().Counts, rows[1].Counts)

	entries := s.CollectAll(ctx)
	require.Len(t, entries, n)
	assert.Zero(t, s.Tray().Len())
	assert.Equal(t, n, s.Ledger().Len())

	saved, err := db.ListHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, saved, n)
	assert.Empty(t, notes.errs)
}

func TestDispenseOneAndEat(t *testing.T) {
	ctx := context.Background()
	src := &fakeStock{rec: stock.Record{Tier: stock.Machine, Floor: 1, Counts: candy.Counts{}.With(candy.Eclairs, 1)}}
	s, err := New(Config{Floor: 1, Stock: src, Scores: fixedScore{}})
	require.NoError(t, err)
	_, err = s.Refresh(ctx)
	require.NoError(t, err)

	u, err := s.DispenseOne(ctx, candy.Eclairs)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, 0, s.Stock().Counts.Get(candy.Eclairs))
	assert.Equal(t, 1, src.writes)

	u2, err := s.DispenseOne(ctx, candy.Eclairs)
	require.NoError(t, err)
	assert.Nil(t, u2)
	assert.Equal(t, 1, src.writes)

	e, ok := s.Eat(ctx, u.ID)
	require.True(t, ok)
	assert.Equal(t, candy.DetailsOf(candy.Eclairs).BaseScore, e.Score)
	_, ok = s.Eat(ctx, u.ID)
	assert.False(t, ok)
}

func TestPlayWithEmptyMachine(t *testing.T) {
	ctx := context.Background()
	notes := &recordingNotifier{}
	src := &fakeStock{rec: stock.Record{Tier: stock.Machine, Floor: 3}}
	s, err := New(Config{Floor: 3, Stock: src, Scores: fixedScore{raw: "100"}, PollInterval: time.Millisecond, Notifier: notes})
	require.NoError(t, err)
	_, err = s.Refresh(ctx)
	require.NoError(t, err)

	res, err := s.Play(ctx, "a@b.c", nil)
	require.NoError(t, err)
	assert.True(t, res.Outcome.NoStock)
	assert.Zero(t, src.writes)
	assert.Contains(t, notes.info, dispense.NoStockMsg)
	assert.Empty(t, notes.errs)
}

func TestConcurrentDispenseOneNeverOverdispenses(t *testing.T) {
	ctx := context.Background()
	for trial := 0; trial < 500; trial++ {
		src := &lockedStock{rec: stock.Record{Tier: stock.Machine, Floor: 1, Counts: candy.Counts{}.With(candy.FiveStar, 1)}}
		s, err := New(Config{Floor: 1, Stock: src, Scores: fixedScore{}})
		require.NoError(t, err)
		_, err = s.Refresh(ctx)
		require.NoError(t, err)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for i := 0; i < 3; i++ {
					_, _ = s.DispenseOne(ctx, candy.FiveStar)
				}
			}()
		}
		close(start)
		wg.Wait()

		if s.Tray().Len() > 1 {
			t.Fatalf("trial %d: %d units dispensed from a stock of 1", trial, s.Tray().Len())
		}
		require.Equal(t, 1-s.Tray().Len(), s.Stock().Counts.Get(candy.FiveStar), "trial %d", trial)
	}
}

func TestDispenseOneBusyWhileOperationRunning(t *testing.T) {
	s, err := New(Config{Floor: 1, Stock: &fakeStock{rec: stock.Record{Counts: candy.Defaults()}}, Scores: fixedScore{}})
	require.NoError(t, err)

	s.opMu.Lock()
	_, err = s.DispenseOne(context.Background(), candy.Eclairs)
	s.opMu.Unlock()
	assert.ErrorIs(t, err, dispense.ErrBusy)
	assert.Zero(t, s.Tray().Len())
}

func TestPlayRejectsBadEmail(t *testing.T) {
	notes := &recordingNotifier{}
	s, err := New(Config{Floor: 1, Stock: &fakeStock{}, Scores: fixedScore{raw: "20"}, Notifier: notes})
	require.NoError(t, err)

	_, err = s.Play(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, scoring.ErrInvalidEmail)
	assert.Len(t, notes.errs, 1)
	assert.Zero(t, s.Tray().Len())
}

func TestRefreshDegraded(t *testing.T) {
	notes := &recordingNotifier{}
	src := &fakeStock{rec: stock.Fallback(stock.Machine, 1)}
	s, err := New(Config{Floor: 1, Stock: src, Scores: fixedScore{}, Notifier: notes})
	require.NoError(t, err)

	rec, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, rec.Degraded)
	assert.Equal(t, candy.Defaults(), s.Stock().Counts)
	assert.Len(t, notes.errs, 1)
}

func TestLowStock(t *testing.T) {
	counts := candy.Defaults().
		With(candy.Ferrero, 1).
		With(candy.MilkyBar, 3).
		With(candy.DairyMilk, 5)
	src := &fakeStock{rec: stock.Record{Tier: stock.Machine, Floor: 1, Counts: counts}}
	s, err := New(Config{Floor: 1, Stock: src, Scores: fixedScore{}})
	require.NoError(t, err)
	_, err = s.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []candy.Type{candy.Ferrero, candy.MilkyBar}, s.LowStock(50))
	assert.Empty(t, s.LowStock(10))
}
