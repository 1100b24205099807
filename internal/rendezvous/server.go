package rendezvous

import (
	"context"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/SpatiumPortae/stardrop/internal/logger"
	"github.com/SpatiumPortae/stardrop/internal/semver"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server contains the necessary data to run the pairing broker.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	directory  *Directory
	hub        *Hub
	relay      *Relay
	logger     *zap.Logger
	version    semver.Version
}

type Option func(*options)

type options struct {
	logger    *zap.Logger
	directory []DirectoryOption
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCodePolicy sets what happens when a code is registered twice.
func WithCodePolicy(p Policy) Option {
	return func(o *options) {
		o.directory = append(o.directory, WithPolicy(p))
	}
}

// WithSingleUseCodes makes every code resolve at most once.
func WithSingleUseCodes(singleUse bool) Option {
	return func(o *options) {
		o.directory = append(o.directory, WithSingleUse(singleUse))
	}
}

// NewServer constructs a new Server struct and setups the routes.
func NewServer(port int, version semver.Version, opts ...Option) *Server {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.New()
	}
	router := mux.NewRouter()
	stdLoggerWrapper, _ := zap.NewStdLogAt(o.logger, zap.ErrorLevel)
	directory := NewDirectory(o.directory...)
	hub := NewHub()
	s := &Server{
		// Websocket connections live as long as the endpoint waits for a
		// peer, so only the request header read is bounded.
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			ReadHeaderTimeout: 10 * time.Second,
			Handler:           router,
			ErrorLog:          stdLoggerWrapper,
		},
		router:    router,
		directory: directory,
		hub:       hub,
		relay:     NewRelay(directory, hub, o.logger),
		logger:    o.logger,
		version:   version,
	}
	s.routes()
	return s
}

// Handler returns the root handler of the broker.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the broker until the process is interrupted.
func (s *Server) Start() {
	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(s, ctx); err != nil {
		s.logger.Error("serving stardrop broker", zap.Error(err), zap.Stack("stack_trace"))
	}
}

// serve is a helper function providing graceful shutdown of the server.
func serve(s *Server, ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	s.logger.
		With(zap.String("version", s.version.String())).
		With(zap.String("address", s.httpServer.Addr)).
		Info("serving broker")

	select {
	case err := <-errc:
		return fmt.Errorf("listening: %w", err)
	case <-ctx.Done():
	}
	s.logger.Info("stardrop broker is shutting down")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("shutting down broker: %w", err)
	}
	s.logger.Info("stardrop broker shutdown successfully")
	return nil
}
