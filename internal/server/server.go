package server

import (
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/sw33tLie/candyvend/internal/utils"
	"github.com/sw33tLie/candyvend/pkg/storage"
)

// autoScores are the values the emulated scorer hands out.
var autoScores = []int{20, 40, 60, 80, 100}

// Config tunes the emulated scoring service.
type Config struct {
	// AutoScore assigns a random score once ScoreDelay has passed since
	// registration, standing in for the asynchronous scorer.
	AutoScore  bool
	ScoreDelay time.Duration
	Now        func() time.Time
	Rand       *rand.Rand
}

// Server emulates the remote stock and scoring services on top of sqlite.
type Server struct {
	DB  *storage.DB
	cfg Config

	randMu sync.Mutex
}

func New(db *storage.DB, cfg Config) *Server {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Server{DB: db, cfg: cfg}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/stock", s.handleGetStock)
	mux.HandleFunc("PATCH /api/stock/{table}/{floor}", s.handlePatchStock)
	mux.HandleFunc("PATCH /api/stock/{table}", s.handlePatchStock)

	mux.HandleFunc("POST /api/score", s.handleRegisterScore)
	mux.HandleFunc("GET /api/score", s.handleGetScore)
	mux.HandleFunc("PUT /api/score", s.handleSetScore)

	return logRequests(mux)
}

func (s *Server) Start(addr string) error {
	utils.Log.Infof("Starting stock/scoring emulator on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) randomScore() int {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return autoScores[s.cfg.Rand.IntN(len(autoScores))]
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		utils.Log.Debugf("%s %s (%s)", r.Method, r.URL.RequestURI(), time.Since(start))
	})
}
