package polling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sw33tLie/candyvend/pkg/candy"
	"github.com/sw33tLie/candyvend/pkg/scoring"
)

const DefaultInterval = 3 * time.Second

// ErrSuperseded ends a session replaced by a newer Start.
var ErrSuperseded = errors.New("score acquisition superseded by a newer request")

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

type State int

const (
	Idle State = iota
	Submitting
	Polling
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Polling:
		return "polling"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result is a successfully acquired score.
type Result struct {
	Raw   string // as returned by the scoring service
	Score int
	Count int // drop count, candy.ScoreToCount(Score)
}

// PollSession is a point-in-time view of a session.
type PollSession struct {
	Identifier string
	SysID      string
	State      State
	Active     bool
	Result     *Result
	Error      string
	Polls      int
}

// Acquirer runs score acquisitions. Only one session is active at a time:
// starting a new one cancels the previous one first.
type Acquirer struct {
	Service  scoring.Service
	Interval time.Duration // defaults to DefaultInterval
	Log      Logger        // optional; nil = no logging

	mu      sync.Mutex
	current *Session
}

// Session is the handle for one in-flight acquisition.
type Session struct {
	identifier string

	mu     sync.Mutex
	state  State
	sysID  string
	result *Result
	err    error
	polls  int

	cancelOnce sync.Once
	cancelCh   chan struct{}
	stop       context.CancelFunc
	done       chan struct{}
}

// Start registers email with the scoring service and polls for its score in
// the background. Any session already running is cancelled, and has fully
// stopped, before the new one issues its first request.
func (a *Acquirer) Start(ctx context.Context, email string) *Session {
	sctx, stop := context.WithCancel(ctx)
	s := &Session{
		identifier: email,
		state:      Idle,
		cancelCh:   make(chan struct{}),
		stop:       stop,
		done:       make(chan struct{}),
	}

	a.mu.Lock()
	prev := a.current
	a.current = s
	a.mu.Unlock()

	if prev != nil {
		prev.supersede()
		<-prev.done
	}

	go a.run(sctx, s)
	return s
}

// Current returns the most recently started session, or nil.
func (a *Acquirer) Current() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *Acquirer) logger() Logger {
	if a.Log == nil {
		return nopLogger{}
	}
	return a.Log
}

func (a *Acquirer) interval() time.Duration {
	if a.Interval <= 0 {
		return DefaultInterval
	}
	return a.Interval
}

func (a *Acquirer) run(ctx context.Context, s *Session) {
	defer close(s.done)
	defer s.stop()
	log := a.logger()

	if err := scoring.ValidateEmail(s.identifier); err != nil {
		s.fail(err)
		return
	}

	s.setState(Submitting)
	sysID, err := a.Service.Register(ctx, s.identifier)
	if s.cancelled() {
		s.fail(ErrSuperseded)
		return
	}
	if err != nil {
		log.Warnf("Score registration for %s failed: %v", s.identifier, err)
		s.fail(err)
		return
	}

	s.mu.Lock()
	s.sysID = sysID
	s.state = Polling
	s.mu.Unlock()
	log.Debugf("Registered %s (sys_id %s), polling every %s", s.identifier, sysID, a.interval())

	ticker := time.NewTicker(a.interval())
	defer ticker.Stop()

	for {
		select {
		case <-s.cancelCh:
			s.fail(ErrSuperseded)
			return
		case <-ctx.Done():
			if s.cancelled() {
				s.fail(ErrSuperseded)
			} else {
				s.fail(ctx.Err())
			}
			return
		case <-ticker.C:
		}

		// A tick and a cancel can be ready together; cancellation wins.
		if s.cancelled() {
			s.fail(ErrSuperseded)
			return
		}

		s.mu.Lock()
		s.polls++
		s.mu.Unlock()

		raw, ready, err := a.Service.FetchScore(ctx, s.identifier)
		if s.cancelled() {
			s.fail(ErrSuperseded)
			return
		}
		if err != nil {
			log.Warnf("Score poll for %s failed, giving up: %v", s.identifier, err)
			s.fail(err)
			return
		}
		if !ready {
			continue
		}

		score, err := candy.ParseScore(raw)
		if err != nil {
			log.Warnf("Score %q for %s is not usable: %v", raw, s.identifier, err)
			s.fail(fmt.Errorf("%w: %q", err, raw))
			return
		}
		s.succeed(&Result{Raw: raw, Score: score, Count: candy.ScoreToCount(score)})
		log.Infof("Score for %s is %d", s.identifier, score)
		return
	}
}

func (s *Session) Identifier() string { return s.identifier }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the current session data.
func (s *Session) Snapshot() PollSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := PollSession{
		Identifier: s.identifier,
		SysID:      s.sysID,
		State:      s.state,
		Active:     s.state == Idle || s.state == Submitting || s.state == Polling,
		Polls:      s.polls,
	}
	if s.result != nil {
		r := *s.result
		ps.Result = &r
	}
	if s.err != nil {
		ps.Error = s.err.Error()
	}
	return ps
}

// Cancel stops polling before the next request. It is safe to call more than once.
func (s *Session) Cancel() { s.supersede() }

// Done is closed once the session has reached Succeeded or Failed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session finishes or ctx is done.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Result{}, s.err
	}
	return *s.result, nil
}

func (s *Session) supersede() {
	s.cancelOnce.Do(func() {
		close(s.cancelCh)
		s.stop()
	})
}

func (s *Session) cancelled() bool {
	select {
	case <-s.cancelCh:
		return true
	default:
		return false
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = Failed
	s.err = err
	s.mu.Unlock()
}

func (s *Session) succeed(r *Result) {
	s.mu.Lock()
	s.state = Succeeded
	s.result = r
	s.mu.Unlock()
}
