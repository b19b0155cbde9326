package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/piecom/internal/cache"
	"github.com/vladislavdragonenkov/piecom/internal/domain"
	"github.com/vladislavdragonenkov/piecom/internal/service/gateway"
	"github.com/vladislavdragonenkov/piecom/internal/storage/memory"
	"github.com/vladislavdragonenkov/piecom/internal/storage/postgres"
)

// Dependencies содержит инфраструктурные зависимости приложения:
// репозитории выбранного хранилища, кеш корзин и клиент платёжного шлюза.
type Dependencies struct {
	Products    domain.ProductRepository
	Carts       domain.CartRepository
	Orders      domain.OrderRepository
	Idempotency domain.IdempotencyRepository
	Outbox      domain.OutboxRepository
	Timeline    domain.TimelineRepository
	CartCache   cache.CartCache
	Gateway     domain.PaymentGateway
	Logger      *log.Entry

	store       *postgres.Store
	redisClient *redis.Client
}

// NewDependencies инициализирует зависимости по конфигурации.
// PIECOM_STORAGE выбирает движок хранения, redis и боевой шлюз опциональны.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.New().WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	switch cfg.StorageDriver {
	case "", "memory":
		deps.Products = memory.NewProductRepository()
		deps.Carts = memory.NewCartRepository()
		deps.Orders = memory.NewOrderRepository()
		deps.Idempotency = memory.NewIdempotencyRepository()
		deps.Outbox = memory.NewOutboxRepository()
		deps.Timeline = memory.NewTimelineRepository()
		logger.Info("using in-memory storage")
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires PIECOM_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		deps.store = store
		deps.Products = postgres.NewProductRepository(store)
		deps.Carts = postgres.NewCartRepository(store)
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Idempotency = postgres.NewIdempotencyRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Timeline = postgres.NewTimelineRepository(store)
		logger.Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}

	if cfg.RedisAddr != "" {
		deps.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := deps.redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis is not reachable, cart cache disabled")
			_ = deps.redisClient.Close()
			deps.redisClient = nil
		} else {
			deps.CartCache = cache.NewRedisCache(deps.redisClient)
			logger.WithField("addr", cfg.RedisAddr).Info("cart cache enabled")
		}
	}

	if cfg.GatewayBaseURL != "" {
		deps.Gateway = gateway.NewClient(gateway.Config{
			BaseURL:   cfg.GatewayBaseURL,
			KeyID:     cfg.GatewayKeyID,
			KeySecret: cfg.GatewayKeySecret,
			Timeout:   cfg.GatewayTimeout,
		}, logger.WithField("component", "gateway"))
	} else {
		logger.Warn("gateway base url is not set, using mock gateway")
		deps.Gateway = gateway.NewMockGateway(cfg.GatewayKeySecret)
	}

	return deps, nil
}

// Close освобождает подключения к внешним системам.
func (d *Dependencies) Close() {
	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
