package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lanstar128/jjds-auth-service/internal/audit"
	auditrepo "github.com/lanstar128/jjds-auth-service/internal/audit/repository"
	"github.com/lanstar128/jjds-auth-service/internal/auth/handler"
	"github.com/lanstar128/jjds-auth-service/internal/auth/service"
	"github.com/lanstar128/jjds-auth-service/internal/config"
	"github.com/lanstar128/jjds-auth-service/internal/db"
	"github.com/lanstar128/jjds-auth-service/internal/policy/engine"
	"github.com/lanstar128/jjds-auth-service/internal/security"
	"github.com/lanstar128/jjds-auth-service/internal/server"
	"github.com/lanstar128/jjds-auth-service/internal/server/middleware"
	"github.com/lanstar128/jjds-auth-service/internal/session/store"
	"github.com/lanstar128/jjds-auth-service/internal/telemetry"
	"github.com/lanstar128/jjds-auth-service/internal/telemetry/otel"
	"github.com/lanstar128/jjds-auth-service/internal/telemetry/producer"
	userrepo "github.com/lanstar128/jjds-auth-service/internal/user/repository"
)

const serviceName = "jjds-auth-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer conn.Close()

	sessions, redisClient, err := buildSessionStore(ctx, cfg, conn)
	if err != nil {
		log.Fatalf("session store: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("JWT_PRIVATE_KEY: %v", err)
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("JWT_PUBLIC_KEY: %v", err)
	}
	tokens := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())

	policySource, err := loadPolicySource(cfg.LoginPolicyRego)
	if err != nil {
		log.Fatalf("LOGIN_POLICY_REGO: %v", err)
	}
	evaluator, err := engine.NewOPAEvaluator(ctx, policySource)
	if err != nil {
		log.Fatalf("login policy: %v", err)
	}

	emitters := telemetry.MultiEmitter{otel.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer, err := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.LoginEventsKafkaTopic)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}
	if kafkaProducer != nil {
		defer kafkaProducer.Close()
		emitters = append(emitters, kafkaProducer)
	}

	metrics, err := telemetry.NewMetrics(providers.MeterProvider.Meter(serviceName))
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	auditor := audit.NewLogger(auditrepo.NewPostgresRepository(conn), middleware.ExtractIP)

	authSvc := service.NewAuthService(
		userrepo.NewPostgresRepository(conn),
		sessions,
		security.NewHasher(cfg.BcryptCost),
		tokens,
		evaluator,
		cfg.RefreshTTL(),
	)

	router := server.NewRouter(&server.Deps{
		ServiceName: serviceName,
		Auth:        handler.NewAuthHandler(authSvc, auditor, emitters, metrics),
		Tokens:      tokens,
		Sessions:    sessions,
		Policy:      evaluator,
		DB:          conn,
		Redis:       redisClient,
	})

	log.Printf("auth service listening on %s (session backend: %s)", cfg.HTTPAddr, cfg.SessionBackend)
	if err := server.Run(ctx, cfg.HTTPAddr, router); err != nil {
		log.Fatalf("serve: %v", err)
	}

	// Let in-flight async emits finish before tearing down the exporters.
	time.Sleep(telemetry.ShutdownDrainDuration)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("auth service stopped")
}

// loadPolicySource accepts LOGIN_POLICY_REGO as inline Rego or a file path.
func loadPolicySource(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "package ") {
		return s, nil
	}
	b, err := os.ReadFile(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func buildSessionStore(ctx context.Context, cfg *config.Config, conn *sql.DB) (store.Store, *redis.Client, error) {
	switch cfg.SessionBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, err
		}
		return store.NewRedisStore(client), client, nil
	case config.BackendPostgres:
		return store.NewPostgresStore(conn), nil, nil
	default:
		return store.NewMemoryStore(), nil, nil
	}
}
