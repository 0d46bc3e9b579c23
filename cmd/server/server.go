package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	appkafka "example.com/socialfeed/internal/broker"
	"example.com/socialfeed/internal/cache"
	"example.com/socialfeed/internal/feed"
	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/metrics"
	"example.com/socialfeed/internal/middleware"
	"example.com/socialfeed/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

var logg = logger.New()

// Deps are the collaborators a Server is built from. Cache, Metrics and
// Gatherer are optional.
type Deps struct {
	Store     store.StoreInterface
	Writer    appkafka.EventWriter
	Cache     cache.FeedCache
	Metrics   metrics.MetricsCollector
	Gatherer  prometheus.Gatherer
	JWTSecret []byte
	TokenTTL  time.Duration
}

type Server struct {
	store       store.StoreInterface
	kafkaWriter appkafka.EventWriter
	cache       cache.FeedCache
	metrics     metrics.MetricsCollector
	gatherer    prometheus.Gatherer
	engine      *feed.Engine
	jwtSecret   []byte
	tokenTTL    time.Duration
}

func New(d Deps) *Server {
	s := &Server{
		store:       d.Store,
		kafkaWriter: d.Writer,
		cache:       d.Cache,
		metrics:     d.Metrics,
		gatherer:    d.Gatherer,
		jwtSecret:   d.JWTSecret,
		tokenTTL:    d.TokenTTL,
	}
	if s.cache == nil {
		s.cache = cache.NopCache{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = 24 * time.Hour
	}
	s.engine = feed.New(s.store, feed.WithLogger(logg), feed.WithRecorder(s.metrics))
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	auth := middleware.JWTAuth(s.jwtSecret)
	optionalAuth := middleware.OptionalJWTAuth(s.jwtSecret)

	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("POST /users", s.createUserHandler)
	mux.HandleFunc("GET /users", s.listUsersHandler)

	// Protected endpoints with JWT authentication middleware
	mux.Handle("POST /follow", auth(http.HandlerFunc(s.followHandler)))
	mux.Handle("POST /unfollow", auth(http.HandlerFunc(s.unfollowHandler)))
	mux.Handle("POST /posts", auth(http.HandlerFunc(s.createPostHandler)))
	mux.Handle("POST /reposts", auth(http.HandlerFunc(s.createRepostHandler)))

	// Anonymous viewers get an empty feed
	mux.Handle("GET /feed", optionalAuth(http.HandlerFunc(s.getFeedHandler)))

	if s.gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(s.gatherer))
	}
	return mux
}

// Run serves s on addr until ctx is canceled, then shuts down gracefully.
// TLS is used when both certFile and keyFile are set.
func Run(ctx context.Context, s *Server, addr, certFile, keyFile string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second, // prevent slowloris attacks
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			logg.Info("server", "Starting HTTPS server on "+addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			logg.Info("server", "Starting HTTP server on "+addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error("server", "Server stopped unexpectedly", err)
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
		return err
	}
	logg.Info("server", "Server stopped gracefully")
	return nil
}
