package inbound

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
	"github.com/abdul-hamid-achik/callspec/packages/core/runner"
)

// DefaultCounterpartHeader names the header identifying the sender of a
// callback.
const DefaultCounterpartHeader = "FSPIOP-Source"

// Signaler receives callbacks.
type Signaler interface {
	Signal(counterpart, method, url string, headers map[string]string, body any) bool
}

// Controller starts and stops runs.
type Controller interface {
	Start(p *plan.TestPlan, traceID, counterpart string) error
	Terminate(traceID string) bool
	Status(traceID string) (runner.RunStatus, bool)
}

// Server is the callback receiver and control API
type Server struct {
	signaler          Signaler
	controller        Controller
	addr              string
	hosting           bool
	counterpartHeader string
	maxBodyBytes      int64
	logger            zerolog.Logger
	router            chi.Router
}

// Option is a functional option for Server
type Option func(*Server)

// WithAddr sets the listen address
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHosting isolates callbacks by the counterpart named in header. An
// empty header keeps the default.
func WithHosting(enabled bool, header string) Option {
	return func(s *Server) {
		s.hosting = enabled
		if header != "" {
			s.counterpartHeader = header
		}
	}
}

// WithController enables the control API
func WithController(c Controller) Option {
	return func(s *Server) {
		s.controller = c
	}
}

// WithMaxBodyBytes limits request bodies
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		s.maxBodyBytes = n
	}
}

// NewServer creates a new inbound server
func NewServer(signaler Signaler, opts ...Option) *Server {
	s := &Server{
		signaler:          signaler,
		addr:              ":4040",
		counterpartHeader: DefaultCounterpartHeader,
		maxBodyBytes:      10 << 20,
		logger:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLog)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "OK"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/outbound", func(r chi.Router) {
			r.Post("/template/{traceID}", s.startRun)
			r.Delete("/template/{traceID}", s.terminateRun)
			r.Get("/status/{traceID}", s.runStatus)
		})
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, "not found")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		})
	})

	r.NotFound(s.receiveCallback)
	r.MethodNotAllowed(s.receiveCallback)
	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", s.addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("callback receiver listening")
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serving")
	}
	return nil
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("requestId", chimw.GetReqID(r.Context())).
			Msg("inbound request")
	})
}
