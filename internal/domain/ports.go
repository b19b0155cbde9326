package domain

import (
	"context"
	"time"
)

// ProductRepository — хранилище каталога и складских остатков.
type ProductRepository interface {
	Create(ctx context.Context, product Product) error
	Get(ctx context.Context, id string) (Product, error)
	List(ctx context.Context, limit int) ([]Product, error)
	Update(ctx context.Context, product Product) error
	// DecrementStock выполняет условный декремент: остаток уменьшается
	// только если текущее значение покрывает qty, иначе возвращается
	// ErrInsufficientStock и остаток не меняется. Это единственный
	// примитив синхронизации против oversell.
	DecrementStock(ctx context.Context, productID string, qty int32) error
	// IncrementStock возвращает остаток при компенсации отката.
	IncrementStock(ctx context.Context, productID string, qty int32) error
}

// CartRepository — хранилище корзин, по одной на пользователя.
type CartRepository interface {
	Get(ctx context.Context, userID string) (Cart, error)
	Save(ctx context.Context, cart Cart) error
	Delete(ctx context.Context, userID string) error
}

// OrderRepository — хранилище заказов.
type OrderRepository interface {
	Create(ctx context.Context, order Order) error
	Get(ctx context.Context, id string) (Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// GetByGatewayPayment ищет заказ по идентификатору платежа шлюза;
	// используется для идемпотентного повтора finalize.
	GetByGatewayPayment(ctx context.Context, gatewayPaymentID string) (Order, error)
	// UpdateDeliveryStatus — единственная разрешённая мутация заказа.
	UpdateDeliveryStatus(ctx context.Context, orderID string, state DeliveryState) error
}

// PaymentGateway описывает взаимодействие с внешним платёжным шлюзом.
type PaymentGateway interface {
	// CreateIntent регистрирует намерение оплаты на точную сумму.
	// Повторный вызов с тем же idempotency key не создаёт дублей.
	CreateIntent(ctx context.Context, amountMinor int64, currency, receipt, idempotencyKey string) (PaymentIntent, error)
	// VerifySignature — чистая функция проверки HMAC-подписи подтверждения.
	VerifySignature(proof PaymentProof) bool
	// ConfirmCapture запрашивает у шлюза фактическое состояние платежа.
	// Таймаут или 5xx транслируются в ErrGatewayUnavailable.
	ConfirmCapture(ctx context.Context, gatewayPaymentID string) (CapturedPayment, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа, включая
// reconciliation-случаи, по которым нужна ручная сверка.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	Delete(key string) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
