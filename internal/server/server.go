package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	metricsprom "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"

	"github.com/Nzyazin/payagent/internal/core/extraction"
	"github.com/Nzyazin/payagent/internal/core/handler"
	"github.com/Nzyazin/payagent/internal/core/handshake"
	"github.com/Nzyazin/payagent/internal/core/logger"
	middlWre "github.com/Nzyazin/payagent/internal/core/middleware"
	"github.com/Nzyazin/payagent/internal/core/notify"
	"github.com/Nzyazin/payagent/internal/core/queue"
	"github.com/Nzyazin/payagent/internal/core/repository/postgres"
	"github.com/Nzyazin/payagent/internal/core/usecase"
	"github.com/Nzyazin/payagent/pkg/config"
	"github.com/Nzyazin/payagent/pkg/postgresdb"
)

type Server struct {
	router             *mux.Router
	handler            http.Handler
	log                logger.Logger
	httpServer         *http.Server
	transactionHandler *handler.TransactionHandler
	db                 *postgresdb.Database
	redis              *redis.Client
	rabbit             *queue.RabbitMQ
}

// NewServer connects the approval API to postgres, redis and rabbitmq.
func NewServer(ctx context.Context, log logger.Logger) (*Server, error) {
	cfgDB, err := config.LoadConfigDB()
	if err != nil {
		return nil, err
	}
	cfgServer, err := config.LoadConfigServer()
	if err != nil {
		return nil, err
	}
	cfgHandshake, err := config.LoadConfigHandshake()
	if err != nil {
		return nil, err
	}
	cfgRabbit, err := config.LoadConfigRabbit()
	if err != nil {
		return nil, err
	}

	db, err := postgresdb.NewPostgresDB(ctx, *cfgDB, log)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db.DB); err != nil {
		db.Close()
		return nil, err
	}

	rdb, err := handshake.DialRedis(ctx, cfgHandshake.RedisURL)
	if err != nil {
		db.Close()
		return nil, err
	}

	rabbit := queue.NewRabbitMQ(cfgRabbit.URL, cfgRabbit.Queue)
	if err := rabbit.Connect(); err != nil {
		rdb.Close()
		db.Close()
		return nil, err
	}

	repo := postgres.NewPostgresTransactionRepo(db.DB, log)
	relay := handshake.NewRelay(handshake.NewRedisStore(rdb), handshake.Config{
		PollInterval: cfgHandshake.PollInterval,
		Deadline:     cfgHandshake.Deadline,
	}, logger.Named(log, "handshake"))
	publisher := queue.NewPublisher(rabbit.Channel, cfgRabbit.Queue, logger.Named(log, "queue"))

	approvals := usecase.NewApprovalUsecase(repo, publisher, relay, log)
	ingest := usecase.NewIngestUsecase(repo,
		extraction.NewClient(cfgServer.ExtractionURL, log),
		notify.NewWebhook(cfgServer.NotifyURL, log),
		publisher, log)
	transactionHandler := handler.NewTransactionHandler(approvals, ingest, cfgServer.UploadDir, cfgServer.LiveFeedPath, log)

	server := New(log, transactionHandler, cfgServer.CORSOrigins)
	server.db = db
	server.redis = rdb
	server.rabbit = rabbit
	return server, nil
}

// New builds the router around an already wired handler. The dashboard is
// served from other origins, so corsOrigins are allowed to call the API.
func New(log logger.Logger, transactionHandler *handler.TransactionHandler, corsOrigins []string) *Server {
	server := &Server{
		log:                log,
		router:             mux.NewRouter(),
		transactionHandler: transactionHandler,
	}

	server.router.Use(loggingMiddleware(server.log))

	mw := httpMetrics()
	server.router.Use(func(next http.Handler) http.Handler {
		return std.Handler("", mw, next)
	})

	server.RegisterRoutes()

	server.handler = handlers.CORS(
		handlers.AllowedOrigins(corsOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", middlWre.UserHeader}),
	)(server.router)
	return server
}

var (
	metricsOnce sync.Once
	metricsMW   middleware.Middleware
)

// httpMetrics registers the HTTP collectors with the default registry once per process.
func httpMetrics() middleware.Middleware {
	metricsOnce.Do(func() {
		metricsMW = middleware.New(middleware.Config{
			Recorder: metricsprom.NewRecorder(metricsprom.Config{}),
		})
	})
	return metricsMW
}

func (s *Server) RegisterRoutes() {
	s.router.Use(middlWre.Recovery(s.log))
	s.transactionHandler.RegisterRoutes(s.router)
	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	middlWre.WriteJSON(w, code, status)
}

func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.httpServer = srv

	return srv.ListenAndServe()
}

func (s *Server) RunTLS(addr, certFile, keyFile string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 6 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
	}

	s.httpServer = srv
	return srv.ListenAndServeTLS(certFile, keyFile)
}

func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	var shutdownErr error

	go func() {
		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(ctx); err != nil {
				s.log.Error("failed to shutdown HTTP server", logger.ErrorField("error", err))
				shutdownErr = errors.Join(shutdownErr, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if s.rabbit != nil {
			s.rabbit.Close()
		}

		if s.redis != nil {
			if err := s.redis.Close(); err != nil {
				s.log.Error("failed to close redis client", logger.ErrorField("error", err))
				shutdownErr = errors.Join(shutdownErr, fmt.Errorf("redis shutdown error: %w", err))
			}
		}

		if s.db != nil {
			if err := s.db.Close(); err != nil {
				s.log.Error("failed to close database connection", logger.ErrorField("error", err))
				shutdownErr = errors.Join(shutdownErr, fmt.Errorf("database shutdown error: %w", err))
			}
		}

		close(done)
	}()

	select {
	case <-done:
		return shutdownErr
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func loggingMiddleware(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Info("HTTP request",
				logger.StringField("method", r.Method),
				logger.StringField("path", r.URL.Path),
				logger.StringField("remote_addr", r.RemoteAddr),
				logger.StringField("user_agent", r.UserAgent()),
			)
			next.ServeHTTP(w, r)
		})
	}
}
