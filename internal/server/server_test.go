package server

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/sw33tLie/candyvend/pkg/candy"
	"github.com/sw33tLie/candyvend/pkg/polling"
	"github.com/sw33tLie/candyvend/pkg/scoring"
	"github.com/sw33tLie/candyvend/pkg/stock"
	"github.com/sw33tLie/candyvend/pkg/storage"
	"github.com/sw33tLie/candyvend/pkg/whttp"
)

type fixture struct {
	db  *storage.DB
	srv *httptest.Server

	mu  sync.Mutex
	now time.Time
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "emulator.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Seed(context.Background(), "Sweet Supply Co", 5))

	f := &fixture{db: db, now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	if cfg.Now == nil {
		cfg.Now = f.clock
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(1, 2))
	}
	f.srv = httptest.NewServer(New(db, cfg).Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(data)
}

func TestGetStockShapes(t *testing.T) {
	f := newFixture(t, Config{})

	status, body := f.do(t, http.MethodGet, "/api/stock?table_name=machine_stock", "")
	require.Equal(t, http.StatusOK, status)
	records := gjson.Get(body, "result").Array()
	require.Len(t, records, stock.MaxFloor)
	assert.Equal(t, "1", records[0].Get("floor_number").String())
	assert.Equal(t, gjson.String, records[0].Get("five_star_stock").Type)
	assert.Equal(t, "10", records[0].Get("five_star_stock").String())

	status, body = f.do(t, http.MethodGet, "/api/stock?table_name=vendor_stock", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, gjson.Get(body, "result").IsObject())
	assert.Equal(t, "Sweet Supply Co", gjson.Get(body, "result.vendor_name").String())
	assert.Equal(t, "50", gjson.Get(body, "result.ferro_rocher_stock").String())

	status, _ = f.do(t, http.MethodGet, "/api/stock?table_name=nope", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPatchStock(t *testing.T) {
	f := newFixture(t, Config{})

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"floor field", "/api/stock/floor_stock/2", `{"eclairs_stock": 4}`, http.StatusOK},
		{"vendor field", "/api/stock/vendor_stock", `{"milky_bar_stock": 7}`, http.StatusOK},
		{"floor out of range", "/api/stock/floor_stock/9", `{"eclairs_stock": 4}`, http.StatusBadRequest},
		{"vendor with floor", "/api/stock/vendor_stock/1", `{"eclairs_stock": 4}`, http.StatusBadRequest},
		{"unknown table", "/api/stock/candy_stock/1", `{"eclairs_stock": 4}`, http.StatusNotFound},
		{"unknown field", "/api/stock/machine_stock/1", `{"gum_stock": 4}`, http.StatusBadRequest},
		{"two fields", "/api/stock/machine_stock/1", `{"eclairs_stock": 4, "milky_bar_stock": 1}`, http.StatusBadRequest},
		{"negative", "/api/stock/machine_stock/1", `{"eclairs_stock": -1}`, http.StatusBadRequest},
		{"fractional", "/api/stock/machine_stock/1", `{"eclairs_stock": 1.5}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := f.do(t, http.MethodPatch, tt.path, tt.body)
			assert.Equal(t, tt.status, status, body)
			if tt.status == http.StatusOK {
				assert.True(t, gjson.Get(body, "result").Bool())
			}
		})
	}

	rows, err := f.db.GetStock(context.Background(), stock.Floor)
	require.NoError(t, err)
	assert.Equal(t, 4, rows[1].Counts.Get(candy.Eclairs))
}

func TestScoreEndpoints(t *testing.T) {
	f := newFixture(t, Config{})

	status, body := f.do(t, http.MethodPost, "/api/score", `{"email": "a@b.c"}`)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, gjson.Get(body, "result.sys_id").String())

	status, body = f.do(t, http.MethodGet, "/api/score?email=a@b.c", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "", gjson.Get(body, "result.score").String())

	status, _ = f.do(t, http.MethodPut, "/api/score", `{"email": "a@b.c", "score": 60}`)
	require.Equal(t, http.StatusOK, status)

	_, body = f.do(t, http.MethodGet, "/api/score?email=a@b.c", "")
	assert.Equal(t, "60", gjson.Get(body, "result.score").String())

	status, _ = f.do(t, http.MethodGet, "/api/score?email=ghost@b.c", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodPut, "/api/score", `{"email": "ghost@b.c", "score": 20}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodPost, "/api/score", `{"email": "not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAutoScoreAfterDelay(t *testing.T) {
	f := newFixture(t, Config{AutoScore: true, ScoreDelay: time.Minute})

	status, _ := f.do(t, http.MethodPost, "/api/score", `{"email": "a@b.c"}`)
	require.Equal(t, http.StatusOK, status)

	_, body := f.do(t, http.MethodGet, "/api/score?email=a@b.c", "")
	assert.Equal(t, "", gjson.Get(body, "result.score").String())

	f.advance(time.Minute)
	_, body = f.do(t, http.MethodGet, "/api/score?email=a@b.c", "")
	score := gjson.Get(body, "result.score").String()
	assert.Contains(t, []string{"20", "40", "60", "80", "100"}, score)

	// The score sticks once assigned.
	_, body = f.do(t, http.MethodGet, "/api/score?email=a@b.c", "")
	assert.Equal(t, score, gjson.Get(body, "result.score").String())
}

func TestClientsAgainstEmulator(t *testing.T) {
	f := newFixture(t, Config{AutoScore: true})
	ctx := context.Background()

	client, err := whttp.NewClient(whttp.ClientOptions{})
	require.NoError(t, err)

	repo := stock.New(f.srv.URL, client)
	rec, err := repo.FetchStock(ctx, stock.Machine, 3)
	require.NoError(t, err)
	assert.False(t, rec.Degraded)
	assert.Equal(t, candy.Defaults(), rec.Counts)

	require.True(t, repo.WriteStockField(ctx, stock.Machine, 3, candy.Ferrero, 2))
	rec, err = repo.FetchStock(ctx, stock.Machine, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Counts.Get(candy.Ferrero))

	vendor, err := repo.FetchStock(ctx, stock.Vendor, 0)
	require.NoError(t, err)
	assert.Equal(t, "Sweet Supply Co", vendor.Vendor)

	acq := &polling.Acquirer{Service: scoring.New(f.srv.URL, client), Interval: 5 * time.Millisecond}
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := acq.Start(ctx, "player@example.com").Wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, candy.ScoreToCount(res.Score), res.Count)
	assert.Contains(t, []int{2, 4, 6, 8, 10}, res.Count)
}
