// Package statusserver implements the operational status server (A5): a
// read-only gorilla/mux HTTP server exposing liveness, a JSON snapshot of
// the rate-limit ledger / circuit breakers / cache, Prometheus metrics, and
// a websocket feed that pushes the same snapshot on every observed state
// change. It renders no HTML and performs no analysis.
package statusserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/guglxni/quotefusion/internal/breaker"
	"github.com/guglxni/quotefusion/internal/cache"
	"github.com/guglxni/quotefusion/internal/ledger"
	"github.com/guglxni/quotefusion/internal/metrics"
)

// Snapshot is the JSON shape returned by /status and pushed over /ws/status.
type Snapshot struct {
	Breakers  map[string]breakerView        `json:"breakers"`
	Providers map[string]ledger.State       `json:"rate_limits"`
	CacheSize int64                          `json:"cache_size_bytes"`
	Time      time.Time                      `json:"time"`
}

type breakerView struct {
	State string `json:"state"`
}

// Server is A5.
type Server struct {
	router  *mux.Router
	http    *http.Server
	breakers *breaker.Manager
	ledger  *ledger.Ledger
	cache   cache.Store
	metrics *metrics.Registry
	log     zerolog.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func New(addr string, breakers *breaker.Manager, ldg *ledger.Ledger, store cache.Store, reg *metrics.Registry, log zerolog.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(), breakers: breakers, ledger: ldg, cache: store, metrics: reg, log: log,
		clients:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
	s.setupRoutes()
	s.http = &http.Server{
		Addr: addr, Handler: s.router,
		ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, IdleTimeout: 60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	s.router.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Gatherer(), promhttp.HandlerOpts{})).Methods("GET")
	s.router.HandleFunc("/ws/status", s.handleWS).Methods("GET")
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("elapsed", time.Since(start)).Msg("status server request")
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) snapshot() Snapshot {
	breakers := make(map[string]breakerView)
	for name, stats := range s.breakers.Snapshot() {
		breakers[name] = breakerView{State: stats.State.String()}
	}
	providers := make(map[string]ledger.State)
	for p, st := range s.ledger.Snapshot() {
		providers[string(p)] = st
	}
	return Snapshot{
		Breakers: breakers, Providers: providers,
		CacheSize: s.cache.CurrentSize(), Time: time.Now(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		s.log.Error().Err(err).Msg("failed to encode status snapshot")
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	if err := conn.WriteJSON(s.snapshot()); err != nil {
		return
	}

	// Drain incoming frames so the connection's read deadline machinery
	// notices a client-side close; this server never expects inbound data.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// BroadcastOnChange pushes the current snapshot to every connected client.
// Callers invoke this from whatever observed a state transition (a breaker
// trip, a cache eviction sweep, a ledger update) rather than the server
// polling on its own.
func (s *Server) BroadcastOnChange() {
	snap := s.snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteJSON(snap); err != nil {
			s.log.Debug().Err(err).Msg("dropping websocket client after write failure")
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

// ListenAndServe blocks serving HTTP until the process is terminated.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("starting status server")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
