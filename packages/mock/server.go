// Package mock provides an in-process fake of the user-management API that
// apismoke targets, with fault injection for exercising retries and the
// reachability probe.
package mock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Fault makes the next Count requests answer with Status instead of being
// routed. A zero Count means every request.
type Fault struct {
	Status     int
	Count      int
	RetryAfter string
}

// Server is a mock HTTP server for the user-management API
type Server struct {
	router   *Router
	port     int
	delay    time.Duration
	verbose  bool
	logger   *logrus.Entry
	limiter  *rate.Limiter
	now      func() time.Time
	ids      atomic.Int64
	requests atomic.Int64

	mu     sync.Mutex
	faults []*Fault
}

// Option is a functional option for Server
type Option func(*Server)

// WithPort sets the server port
func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

// WithDelay adds a delay to all responses
func WithDelay(delay time.Duration) Option {
	return func(s *Server) {
		s.delay = delay
	}
}

// WithVerbose enables per-request logging
func WithVerbose(verbose bool) Option {
	return func(s *Server) {
		s.verbose = verbose
	}
}

func WithLogger(logger *logrus.Entry) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFault queues a fault; faults are consumed in the order added
func WithFault(f Fault) Option {
	return func(s *Server) {
		fault := f
		s.faults = append(s.faults, &fault)
	}
}

// WithRateLimit answers 429 once requests exceed rps with the given burst
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithClock replaces the time source used for createdAt/updatedAt
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer creates a new mock server with the user API routes loaded
func NewServer(opts ...Option) *Server {
	l := logrus.New()
	l.SetOutput(io.Discard)
	s := &Server{
		router: NewRouter(),
		port:   3000,
		logger: logrus.NewEntry(l),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ids.Store(100)
	registerUserRoutes(s.router, &s.ids, s.now)
	return s
}

// AddFault queues a fault on a running server
func (s *Server) AddFault(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fault := f
	s.faults = append(s.faults, &fault)
}

// ClearFaults removes every queued fault
func (s *Server) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = nil
}

// Requests returns how many requests the server has received
func (s *Server) Requests() int {
	return int(s.requests.Load())
}

// GetRoutes returns all registered routes
func (s *Server) GetRoutes() []*Route {
	return s.router.Routes()
}

// Handler exposes the server as an http.Handler, e.g. for httptest
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleRequest)
}

// Start starts the mock server
func (s *Server) Start() error {
	return s.StartWithContext(context.Background())
}

// StartWithContext starts the server with context for graceful shutdown
func (s *Server) StartWithContext(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.WithFields(logrus.Fields{
		"addr":   ln.Addr().String(),
		"routes": len(s.router.Routes()),
	}).Info("mock server starting")
	if s.verbose {
		for _, route := range s.router.Routes() {
			s.logger.Infof("  %s %s (%s)", route.Method, route.PathPattern, route.Name)
		}
	}

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.requests.Add(1)

	// Apply delay if configured
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-r.Context().Done():
			return
		}
	}

	resp, name := s.respond(r)

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.StatusCode)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}

	if s.verbose {
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"route":    name,
			"status":   resp.StatusCode,
			"duration": time.Since(start).String(),
		}).Info("request served")
	}
}

func (s *Server) respond(r *http.Request) (*MockResponse, string) {
	if f := s.nextFault(); f != nil {
		resp := errorResponse(f.Status, http.StatusText(f.Status))
		if f.RetryAfter != "" {
			resp.Headers = map[string]string{"Retry-After": f.RetryAfter}
		}
		return resp, "fault"
	}

	if s.limiter != nil && !s.limiter.Allow() {
		resp := errorResponse(http.StatusTooManyRequests, "Too many requests")
		resp.Headers = map[string]string{"Retry-After": strconv.Itoa(1)}
		return resp, "rate limit"
	}

	route, params := s.router.Match(r.Method, r.URL.Path)
	if route == nil {
		return emptyNotFound(), "not found"
	}
	return route.Handler(r, params), route.Name
}

func (s *Server) nextFault() *Fault {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.faults) == 0 {
		return nil
	}
	f := s.faults[0]
	if f.Count == 0 {
		return f
	}
	f.Count--
	if f.Count == 0 {
		s.faults = s.faults[1:]
	}
	return f
}
