package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/The-Simomatic/Sportisimo/internal/config"
	"github.com/The-Simomatic/Sportisimo/internal/consumer"
	"github.com/The-Simomatic/Sportisimo/internal/logging"
	"github.com/The-Simomatic/Sportisimo/internal/notify"
	"github.com/The-Simomatic/Sportisimo/internal/observability"
	httptransport "github.com/The-Simomatic/Sportisimo/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLogger("sportisimo-notifier", cfg.LogLevel)

	if err := observability.InitSentry(observability.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		ServerName:  "sportisimo-notifier",
	}, logger); err != nil {
		logger.Error("continuing without error tracking", "error", err)
	}
	defer observability.FlushSentry(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var notifier notify.Notifier
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewHTTPNotifier(cfg.NotifyWebhookURL, cfg.NotifyWebhookToken, cfg.NotifyTimeout)
	} else {
		logger.Warn("no mail relay configured - notifications are only logged")
		notifier = notify.LogNotifier{Logger: logger.With("component", "mail")}
	}
	handler := consumer.NewNotificationHandler(notifier, cfg.BaseURL())

	metricsSrv := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.MetricsAddress), promhttp.Handler())
	httptransport.Serve(metricsSrv, "metrics", logger)

	var wg sync.WaitGroup
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})

		topicLogger := logger.With("component", "consumer", "topic", topic)
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(topicLogger))

		wg.Add(1)
		go func(r *kafka.Reader) {
			defer wg.Done()
			defer r.Close()

			topicLogger.Info("consumer started", "group", cfg.ConsumerGroupID)
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				topicLogger.Error("consumer stopped with error", "error", err)
			}
		}(reader)
	}

	<-stop
	logger.Info("consumer shutdown requested")
	cancel()

	httptransport.Shutdown(metricsSrv, 10*time.Second, logger)
	wg.Wait()
}
