// Worker consumes queued invitation emails from Kafka and delivers them over the email HTTP API.
// Set KAFKA_BROKERS, INVITE_EMAIL_TOPIC, KAFKA_GROUP_ID, EMAIL_API_URL and EMAIL_API_KEY.
//
// Queued messages contain the plaintext invitation secret. Create the topic with retention.ms no
// longer than INVITE_DEFAULT_TTL (72h by default) and ACLs limited to the server and this worker.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"travel-cms/backend/internal/config"
	"travel-cms/backend/internal/mail"
	otelsetup "travel-cms/backend/internal/telemetry/otel"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}
	if cfg.EmailAPIURL == "" {
		log.Fatal("worker: EMAIL_API_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serviceName := cfg.ServiceName + "-worker"
	providers, err := otelsetup.NewProviders(ctx, otelsetup.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	logger := otelsetup.NewLogger(otelsetup.LogOptions{
		ServiceName: serviceName,
		Level:       cfg.LogLevel,
		JSON:        cfg.IsProduction(),
		Output:      os.Stderr,
	}, providers.LoggerProvider, providers.Exporting)
	slog.SetDefault(logger)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.InviteEmailTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	sender := mail.NewHTTPSender(cfg.EmailAPIKey, cfg.EmailAPIURL, cfg.EmailSender)
	logger.Info("worker: consuming invitation emails", "topic", cfg.InviteEmailTopic, "group", cfg.KafkaGroupID)
	if err := mail.Relay(ctx, reader, sender, logger); err != nil {
		logger.Error("worker: relay stopped", "error", err)
		return
	}
	log.Println("worker: stopped")
}
