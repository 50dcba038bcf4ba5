package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"travel-cms/backend/internal/audit"
	auditrepo "travel-cms/backend/internal/audit/repository"
	"travel-cms/backend/internal/config"
	"travel-cms/backend/internal/db"
	healthhandler "travel-cms/backend/internal/health/handler"
	identityrepo "travel-cms/backend/internal/identity/repository"
	identityservice "travel-cms/backend/internal/identity/service"
	"travel-cms/backend/internal/invitation/guard"
	"travel-cms/backend/internal/invitation/ledger"
	invitationrepo "travel-cms/backend/internal/invitation/repository"
	"travel-cms/backend/internal/invitation/service"
	"travel-cms/backend/internal/mail"
	policydomain "travel-cms/backend/internal/policy/domain"
	"travel-cms/backend/internal/policy/engine"
	"travel-cms/backend/internal/ratelimit"
	"travel-cms/backend/internal/security"
	"travel-cms/backend/internal/server"
	"travel-cms/backend/internal/server/interceptors"
	"travel-cms/backend/internal/telemetry"
	otelsetup "travel-cms/backend/internal/telemetry/otel"
	userrepo "travel-cms/backend/internal/user/repository"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	logger := otelsetup.NewLogger(otelsetup.LogOptions{
		ServiceName: cfg.ServiceName,
		Level:       cfg.LogLevel,
		JSON:        cfg.IsProduction(),
		Output:      os.Stderr,
	}, providers.LoggerProvider, providers.Exporting)
	slog.SetDefault(logger)

	var (
		invitations invitationrepo.Repository
		users       userrepo.Repository
		identities  identityrepo.Repository
		auditLogs   auditrepo.Repository
		pinger      healthhandler.Pinger
	)
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{})
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer conn.Close()
		invitations = invitationrepo.NewPostgresRepository(conn)
		users = userrepo.NewPostgresRepository(conn)
		identities = identityrepo.NewPostgresRepository(conn)
		auditLogs = auditrepo.NewPostgresRepository(conn)
		pinger = conn
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory stores", "operation", "startup")
		invitations = invitationrepo.NewMemoryRepository()
		users = userrepo.NewMemoryRepository()
		identities = identityrepo.NewMemoryRepository()
		auditLogs = auditrepo.NewMemoryRepository()
	}

	var windows ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RedisURL != "" {
		client, err := ratelimit.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		windows = ratelimit.NewRedisStore(client)
	}

	policy, err := policydomain.LoadIssuancePolicy(cfg.RolePolicyFile)
	if err != nil {
		log.Fatalf("role policy: %v", err)
	}
	evaluator, err := engine.NewOPAEvaluatorFromFile(ctx, policy, cfg.IssuanceRegoFile)
	if err != nil {
		log.Fatalf("issuance policy: %v", err)
	}

	var tokens *security.TokenProvider
	if cfg.JWTPrivateKey != "" && cfg.JWTPublicKey != "" {
		signer, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
		if err != nil {
			log.Fatalf("jwt keys: %v", err)
		}
		tokens = security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	} else {
		logger.Warn("JWT keys not set; administrative invitation RPCs will be rejected", "operation", "startup")
	}

	mailer, closeMailer := newMailer(cfg, logger)
	defer closeMailer()

	metrics, err := telemetry.NewInvitationMetrics(providers.MeterProvider)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	accounts := identityservice.NewAccountService(users, identities, security.NewHasher(cfg.BcryptCost), logger)
	led := ledger.New(invitations, security.NewInviteTokenCodec(), ledger.Config{
		DefaultValidity: cfg.InviteDefaultTTL,
		ExpiredLookback: cfg.InviteExpiredLookback,
	}, logger)
	auditLogger := audit.NewLogger(auditLogs, interceptors.ClientIP, logger)
	svc := service.New(service.Deps{
		Ledger:   led,
		Guard:    guard.New(policy, evaluator, accounts, led, logger),
		Limiter:  ratelimit.New(windows, logger),
		Policies: cfg.RateLimitPolicies(),
		Accounts: accounts,
		Mailer:   mailer,
		Audit:    auditLogger,
		Metrics:  metrics,
		Logger:   logger,
	}, service.Config{
		ReturnSecret:  cfg.InviteReturnSecret,
		AcceptBaseURL: cfg.InviteAcceptBaseURL,
		MailTimeout:   cfg.EmailSendTimeout,
	})
	if cfg.InviteReturnSecret {
		logger.Warn("INVITE_RETURN_SECRET is on; invitation secrets are returned to callers", "operation", "startup")
	}

	clientIPs, err := interceptors.NewClientIPResolver(cfg.TrustedProxiesList())
	if err != nil {
		log.Fatalf("trusted proxies: %v", err)
	}

	deps := server.Deps{
		Invitations:         svc,
		Roles:               policy,
		Tokens:              tokens,
		Audit:               auditLogger,
		HealthPinger:        pinger,
		HealthPolicyChecker: evaluator,
		ClientIP:            clientIPs,
		Logger:              logger,
	}
	s := server.NewServer(deps)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down gRPC server")
	s.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("gRPC server stopped")
}

// newMailer picks the email transport: Kafka when brokers are configured (cmd/worker delivers),
// the HTTP API when a URL is set, otherwise log only.
func newMailer(cfg *config.Config, logger *slog.Logger) (mail.Sender, func()) {
	if k := mail.NewKafkaSender(cfg.KafkaBrokersList(), cfg.InviteEmailTopic); k != nil {
		logger.Info("invitation emails queued to kafka", "topic", cfg.InviteEmailTopic)
		return k, func() {
			if err := k.Close(); err != nil {
				logger.Warn("kafka writer close failed", "error", err)
			}
		}
	}
	if cfg.EmailAPIURL != "" {
		return mail.NewHTTPSender(cfg.EmailAPIKey, cfg.EmailAPIURL, cfg.EmailSender), func() {}
	}
	logger.Warn("EMAIL_API_URL not set; invitation emails are only logged", "operation", "startup")
	return mail.LogSender{Logger: logger}, func() {}
}
