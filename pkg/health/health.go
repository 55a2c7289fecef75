// Package health serves liveness and readiness probes.
//
// Every registered check runs on its own ticker. A check turns unhealthy only
// after FailureThreshold consecutive failures and healthy again on the first
// success, so a single slow dependency round-trip does not flap the probe.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the probe a check contributes to.
type Kind uint8

const (
	// Liveness checks decide whether the process should be restarted.
	Liveness Kind = iota
	// Readiness checks decide whether the process should receive traffic.
	Readiness
)

// DefaultFailureThreshold is used when Check.FailureThreshold is zero.
const DefaultFailureThreshold = 3

// Check describes one registered health check.
type Check struct {
	Name             string
	Kind             Kind
	Timeout          time.Duration
	Func             CheckFunc
	FailureThreshold int
}

type probe struct {
	Check

	healthy atomic.Bool
	lastErr atomic.Pointer[string]
	// fails is only touched by the probe's own goroutine.
	fails int
}

func (p *probe) run(ctx context.Context) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	if err := p.Func(ctx); err != nil {
		msg := err.Error()
		p.lastErr.Store(&msg)
		p.fails++
		if p.fails >= p.FailureThreshold {
			p.healthy.Store(false)
		}
		return
	}
	p.fails = 0
	p.lastErr.Store(nil)
	p.healthy.Store(true)
}

// Service owns the registered checks and the manual readiness flag.
type Service struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
}

// New returns a Service that is not ready until SetReady(true).
func New() *Service {
	return &Service{}
}

// Register adds a check. Checks start healthy.
func (s *Service) Register(c Check) {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	p := &probe{Check: c}
	p.healthy.Store(true)

	s.mu.Lock()
	s.probes = append(s.probes, p)
	s.mu.Unlock()
}

// Start runs every registered check immediately and then once per interval
// until Stop is called or ctx is done.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	probes := append([]*probe(nil), s.probes...)
	s.mu.Unlock()

	for _, p := range probes {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				p.run(ctx)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop cancels the check goroutines. It is safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// SetReady flips the manual readiness flag, e.g. to drain on shutdown.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Ready reports whether the service is marked ready and every readiness
// check passes.
func (s *Service) Ready() bool {
	return s.ready.Load() && len(s.failures(Readiness)) == 0
}

type failure struct {
	name    string
	message string
}

func (s *Service) failures(kind Kind) []failure {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []failure
	for _, p := range s.probes {
		if p.Kind != kind || p.healthy.Load() {
			continue
		}
		msg := "check is unhealthy"
		if m := p.lastErr.Load(); m != nil {
			msg = *m
		}
		out = append(out, failure{name: p.Name, message: msg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Handler serves the probe of the given kind: 200 {"status":"ok"} or
// 503 {"status":"unhealthy","checks":{...}}.
func (s *Service) Handler(kind Kind) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		failures := s.failures(kind)
		if kind == Readiness && !s.ready.Load() {
			failures = append([]failure{{name: "_readiness", message: "service is not ready"}}, failures...)
		}
		writeStatus(w, failures)
	})
}

func writeStatus(w http.ResponseWriter, failures []failure) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	if len(failures) == 0 {
		e.Str("ok")
	} else {
		e.Str("unhealthy")
		e.FieldStart("checks")
		e.ObjStart()
		for _, f := range failures {
			e.FieldStart(f.name)
			e.Str(f.message)
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	if len(failures) > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_, _ = w.Write(e.Bytes())
}
