package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/piecom/internal/api"
	healthcheck "github.com/vladislavdragonenkov/piecom/internal/health"
	"github.com/vladislavdragonenkov/piecom/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/piecom/internal/metrics"
	"github.com/vladislavdragonenkov/piecom/internal/service/cart"
	"github.com/vladislavdragonenkov/piecom/internal/service/checkout"
	"github.com/vladislavdragonenkov/piecom/internal/service/idempotency"
	"github.com/vladislavdragonenkov/piecom/internal/service/outbox"
	"github.com/vladislavdragonenkov/piecom/internal/version"
)

// Run запускает витрину: HTTP API, сервер метрик, фоновые воркеры и
// опциональные Kafka-потоки. Блокируется до отмены ctx или фатальной
// ошибки сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	checkoutMetrics := metrics.NewCheckoutMetrics()

	cartSvc := cart.NewService(
		deps.Products,
		deps.Carts,
		deps.CartCache,
		logger.WithField("component", "cart"),
	)
	engine := checkout.NewEngine(
		checkout.Config{
			DeliveryFeeMinor: cfg.DeliveryFeeMinor,
			SurchargeBP:      cfg.SurchargeBP,
			Currency:         cfg.Currency,
			ConfirmCapture:   cfg.ConfirmCapture,
			IdempotencyTTL:   cfg.IdempotencyTTL,
		},
		deps.Products,
		deps.Carts,
		deps.Orders,
		deps.Gateway,
		deps.Idempotency,
		deps.Outbox,
		deps.Timeline,
		checkoutMetrics,
		logger.WithField("component", "checkout"),
	)

	// Kafka опционален: без брокеров заказы создаются, события копятся в outbox.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	var consumer *kafka.Consumer
	if producer != nil {
		dlqPublisher := kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
		worker := outbox.NewWorker(
			deps.Outbox,
			kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(dlqPublisher),
		)
		go worker.Run(ctx)

		consumer, err = initFulfillmentConsumer(cfg.KafkaBrokers, deps.Orders, producer, logger)
		if err == nil && consumer != nil {
			go func() {
				if startErr := consumer.Start(ctx); startErr != nil && !errors.Is(startErr, context.Canceled) {
					logger.WithError(startErr).Warn("fulfillment consumer stopped")
				}
			}()
		}
	}

	cleanupWorker := idempotency.NewCleanupWorker(
		deps.Idempotency,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
	)
	go cleanupWorker.Run(ctx)

	healthHandler := healthcheck.NewHandler(version.Version())
	if deps.store != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return deps.store.Ping(pingCtx)
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiServer := api.NewServer(
		deps.Products,
		deps.Orders,
		deps.Timeline,
		cartSvc,
		engine,
		[]byte(cfg.JWTSecret),
		logger.WithField("component", "api"),
	)
	srv := &http.Server{Addr: cfg.APIAddr, Handler: apiServer.Handler(cfg.AllowedOrigins)}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.APIAddr)
		errCh <- srv.ListenAndServe()
	}()

	stopStreams := func() {
		if consumer != nil {
			if stopErr := consumer.Stop(); stopErr != nil {
				logger.WithError(stopErr).Warn("failed to stop fulfillment consumer")
			}
		}
		closeKafka(producer, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(srv, logger)
		shutdownHTTP(metricsSrv, logger)
		stopStreams()
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		stopStreams()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
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
