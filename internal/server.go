package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/mtadic/portfolio-backend/internal/auth"
	"github.com/mtadic/portfolio-backend/internal/config"
	"github.com/mtadic/portfolio-backend/internal/content"
	"github.com/mtadic/portfolio-backend/internal/middleware"
	"github.com/mtadic/portfolio-backend/internal/telemetry/metrics"
	"github.com/mtadic/portfolio-backend/pkg"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config      *config.Config
	redisClient *redis.Client
	authService *auth.Service
	contentRepo *content.Repo

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
}

type NewServerParams struct {
	Config        *config.Config
	VersionInfo   string
	RedisPassword string
	JWTSecret     []byte
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	if len(params.JWTSecret) == 0 {
		return nil, errors.New("jwt secret not set")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	// the attempt counting backend is an explicit deployment choice,
	// never probed at runtime
	var attemptStore auth.AttemptStore
	switch params.Config.LoginAttemptsBackend {
	case "memory":
		log.Warnln("login attempts tracked in-process, counters will not survive a restart")
		attemptStore = auth.NewInMemoryAttemptStore()
	case "redis":
		attemptStore = auth.NewRedisAttemptStore(rdb)
	default:
		return nil, fmt.Errorf("unknown login attempts backend: %s", params.Config.LoginAttemptsBackend)
	}

	authService := auth.NewService(
		auth.NewCredentialStore(rdb),
		auth.NewTokenService(params.JWTSecret, auth.DefaultTTL),
		auth.NewSessionRegistry(auth.DefaultTTL, rdb),
		auth.NewLoginLimiter(attemptStore),
	)

	promRegistry := metrics.SetupPrometheus()
	metricsManager := metrics.NewManager("portfolio", "backend", promRegistry)

	return &Server{
		config:         params.Config,
		versionInfo:    params.VersionInfo,
		redisClient:    rdb,
		authService:    authService,
		contentRepo:    content.NewRepo(rdb),
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
	}, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()

	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
	authHandler := auth.NewHandler(
		s.authService,
		s.metricsManager,
		s.config.Environment == "production",
	)
	authHandler.SetupRoutes(
		r,
		middleware.RateLimit(reqRateLimiter, "login", s.config.LoginRateLimitAllowedPerMin, s.metricsManager),
		middleware.Cors(),
	)

	contentHandler := content.NewHandler(s.contentRepo)
	contentHandler.SetupRoutes(r)

	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		pkg.WriteTextResponseOK(w, "I'm OK, thanks ;)")
	}).Methods("GET", "OPTIONS").Name("root")
	r.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		pkg.WriteTextResponseOK(w, s.versionInfo)
	}).Methods("GET").Name("version")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(s.authService)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve(_ context.Context, host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
