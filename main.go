package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	apihttp "retail-settlement/internal/api/http"
	"retail-settlement/internal/audit"
	"retail-settlement/internal/auth"
	"retail-settlement/internal/eventing"
	eventingrepo "retail-settlement/internal/eventing/infrastructure/postgres"
	"retail-settlement/internal/observability/metrics"
	"retail-settlement/internal/platform/keylock"
	processrepo "retail-settlement/internal/process/infrastructure/postgres"
	"retail-settlement/internal/settlement/adapters/contracts"
	"retail-settlement/internal/settlement/adapters/metering"
	settlementapp "retail-settlement/internal/settlement/application"
	settlementrepo "retail-settlement/internal/settlement/infrastructure/postgres"
	settlementinterfaces "retail-settlement/internal/settlement/interfaces"
	"retail-settlement/internal/settlement/notify"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Printf("dotenv load error: %v", err)
	}
	cfg := loadConfig()
	settlementCfg, err := settlementapp.LoadConfig()
	if err != nil {
		logger.Fatalf("settlement config error: %v", err)
	}
	loc, err := settlementCfg.LoadLocation()
	if err != nil {
		logger.Fatalf("settlement location error: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo, err := audit.NewRepository(db)
	if err != nil {
		logger.Fatalf("audit repository error: %v", err)
	}

	var redisClient *redis.Client
	if settlementCfg.Lock.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: settlementCfg.Lock.RedisAddr})
		defer redisClient.Close()
	}
	locker, err := buildLocker(settlementCfg.Lock, db, redisClient, logger)
	if err != nil {
		logger.Fatalf("period locker error: %v", err)
	}

	lookup, err := contracts.NewLookup(db, loc)
	if err != nil {
		logger.Fatalf("contract lookup error: %v", err)
	}
	loader, err := metering.NewDataLoader(db, metering.WithLocation(loc))
	if err != nil {
		logger.Fatalf("data loader error: %v", err)
	}
	sampleCounter, err := metering.NewSampleCounter(db)
	if err != nil {
		logger.Fatalf("sample counter error: %v", err)
	}
	resultStore, err := settlementrepo.NewResultStore(db, locker, settlementrepo.WithLocation(loc), settlementrepo.WithLogger(logger))
	if err != nil {
		logger.Fatalf("result store error: %v", err)
	}
	processRepo, err := processrepo.NewProcessRepository(db)
	if err != nil {
		logger.Fatalf("process repository error: %v", err)
	}

	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(
		settlementapp.SettlementCompleted{},
		settlementapp.SettlementFailed{},
		settlementinterfaces.ProcessTransitionRequested{},
	)
	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db, "")
	dlqStore := eventingrepo.NewDLQStore(db, "")
	dispatcher := eventing.NewDispatcher(bus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, nil, cfg.TenantID)

	orchestratorOpts := []settlementapp.OrchestratorOption{
		settlementapp.WithPublisher(settlementinterfaces.NewOutboxPublisher(publisher, cfg.TenantID)),
		settlementapp.WithLocation(loc),
		settlementapp.WithLogger(logger),
	}
	if settlementCfg.WebhookURL != "" {
		orchestratorOpts = append(orchestratorOpts, settlementapp.WithFailureNotifier(notify.NewWebhookNotifier(settlementCfg.WebhookURL)))
	}
	orchestrator, err := settlementapp.NewOrchestrator(lookup, lookup, loader, sampleCounter, resultStore, orchestratorOpts...)
	if err != nil {
		logger.Fatalf("orchestrator error: %v", err)
	}
	corrections, err := settlementapp.NewCorrectionService(resultStore, lookup, lookup, loader, logger)
	if err != nil {
		logger.Fatalf("correction service error: %v", err)
	}

	processHandler, err := settlementinterfaces.NewProcessEventHandler(processRepo, orchestrator, settlementapp.SystemClock{}, logger)
	if err != nil {
		logger.Fatalf("process handler error: %v", err)
	}
	eventing.Subscribe(bus, eventing.EventTypeOf[settlementinterfaces.ProcessTransitionRequested](), "process.transition", processHandler.HandleEvent, processedStore)

	eventLog := settlementinterfaces.NewLoggingPublisher(logger)
	eventing.Subscribe(bus, eventing.EventTypeOf[settlementapp.SettlementCompleted](), "settlement.log", func(ctx context.Context, event any) error {
		evt, ok := event.(settlementapp.SettlementCompleted)
		if !ok {
			return eventing.ErrInvalidEventType
		}
		return eventLog.PublishSettlementCompleted(ctx, evt)
	}, processedStore)
	eventing.Subscribe(bus, eventing.EventTypeOf[settlementapp.SettlementFailed](), "settlement.log", func(ctx context.Context, event any) error {
		evt, ok := event.(settlementapp.SettlementFailed)
		if !ok {
			return eventing.ErrInvalidEventType
		}
		return eventLog.PublishSettlementFailed(ctx, evt)
	}, processedStore)

	if redisClient != nil {
		relay, err := settlementinterfaces.NewRedisRelay(redisClient, cfg.RelayChannel)
		if err != nil {
			logger.Fatalf("redis relay error: %v", err)
		}
		eventing.Subscribe(bus, eventing.EventTypeOf[settlementapp.SettlementCompleted](), "settlement.relay", relay.Handle, processedStore)
		eventing.Subscribe(bus, eventing.EventTypeOf[settlementapp.SettlementFailed](), "settlement.relay", relay.Handle, processedStore)
	}

	ctx := context.Background()
	go dispatcher.Run(ctx, cfg.DispatchInterval, cfg.DispatchBatch, logger)

	scheduler := settlementapp.NewScheduler(orchestrator, processRepo, settlementCfg.Schedule, logger)
	go scheduler.Start(ctx)

	settlementHandler, err := settlementinterfaces.NewSettlementHandler(orchestrator, resultStore, corrections, auditRepo, loc)
	if err != nil {
		logger.Fatalf("settlement handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy, logger)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/settlements/", settlementHandler)
	mux.Handle("/api/v1/corrections/preview", settlementHandler)
	mux.Handle("/api/v1/processes/transitions", processHandler)
	mux.Handle("/api/v1/exports/runs.csv", apihttp.NewExportRunsCSVHandler(resultStore))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL      string
	HTTPAddr         string
	TenantID         string
	JWTSecret        string
	RelayChannel     string
	DispatchInterval time.Duration
	DispatchBatch    int
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:      getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:         getenvDefault("HTTP_ADDR", ":8080"),
		TenantID:         getenvDefault("TENANT_ID", "supplier-default"),
		JWTSecret:        getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		RelayChannel:     getenvDefault("REDIS_RELAY_CHANNEL", settlementinterfaces.DefaultRelayChannel),
		DispatchInterval: getenvDuration("OUTBOX_DISPATCH_INTERVAL", 2*time.Second),
		DispatchBatch:    getenvIntDefault("OUTBOX_DISPATCH_BATCH", 100),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func buildLocker(cfg settlementapp.LockConfig, db *sql.DB, client *redis.Client, logger *log.Logger) (keylock.Locker, error) {
	switch cfg.Backend {
	case settlementapp.LockBackendRedis:
		return keylock.NewRedisLocker(client, keylock.WithRedisTTL(cfg.TTL), keylock.WithRedisLogger(logger))
	case settlementapp.LockBackendMemory:
		return keylock.NewShardedLocker(64), nil
	default:
		return settlementrepo.NewAdvisoryLocker(db, logger)
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
