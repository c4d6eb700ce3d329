package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/learnonline/commerce/internal/health"
	"github.com/learnonline/commerce/internal/messaging/kafka"
	"github.com/learnonline/commerce/internal/service/httpapi"
	"github.com/learnonline/commerce/internal/service/ledger"
	"github.com/learnonline/commerce/internal/service/outbox"
	"github.com/learnonline/commerce/internal/version"
)

// Run запускает приложение: API сервер, ops сервер с метриками и health
// checks, фоновые воркеры outbox и очистки реестра событий.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	svcs, err := buildServices(ctx, deps, cfg, logger)
	if err != nil {
		return err
	}

	// Kafka опционален: без brokers события outbox остаются pending.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	if kafkaProducer != nil {
		publisher := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicCommerceEvents)
		dlqPublisher := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetterQueue)
		worker := outbox.NewWorker(
			deps.outbox,
			publisher,
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(dlqPublisher),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		go worker.Run(ctx)

		if consumer, err := initKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, kafkaProducer, logger); err == nil && consumer != nil {
			if err := consumer.Start(ctx); err != nil {
				logger.WithError(err).Warn("event audit consumer failed to start")
			} else {
				defer func() {
					if err := consumer.Stop(); err != nil {
						logger.WithError(err).Warn("event audit consumer stop failed")
					}
				}()
			}
		}
	}

	cleanupWorker := ledger.NewCleanupWorker(
		deps.events,
		ledger.WithLogger(logger.WithField("component", "ledger-cleanup")),
		ledger.WithInterval(cfg.LedgerCleanupInterval),
		ledger.WithBatchSize(cfg.LedgerCleanupBatch),
	)
	go cleanupWorker.Run(ctx)

	v, _, _ := version.Info()
	healthHandler := healthcheck.NewHandler(v)
	if deps.store != nil {
		healthHandler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return deps.store.Ping(pingCtx)
		}))
	}
	opsSrv := startOpsServer(ctx, cfg.OpsAddr, logger, healthHandler)

	apiServer := httpapi.NewServer(
		svcs.cart,
		svcs.checkout,
		svcs.refunds,
		svcs.gateway,
		svcs.procConfig,
		cfg.AdminToken,
		logger.WithField("component", "httpapi"),
	)
	srv := &http.Server{Addr: cfg.APIAddr, Handler: apiServer.Router()}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("API сервер слушает %s", cfg.APIAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем API сервер")
		shutdownHTTP(srv, logger)
		shutdownHTTP(opsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(opsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startOpsServer запускает HTTP-обработчики /metrics и health checks.
func startOpsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("ops server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
