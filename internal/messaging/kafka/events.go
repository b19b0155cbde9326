package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Order события
	EventTypeOrderCreated         EventType = "order.created"
	EventTypeOrderDeliveryUpdated EventType = "order.delivery_updated"

	// Checkout reconciliation события
	EventTypeStockConflict  EventType = "checkout.stock_conflict"
	EventTypeAmountMismatch EventType = "checkout.amount_mismatch"
)

// Topics для Kafka
const (
	TopicOrderEvents       = "piecom.order.events"
	TopicFulfillmentEvents = "piecom.fulfillment.events" // входящие статусы доставки
	TopicDeadLetterQueue   = "piecom.dlq"                // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType EventType              `json:"event_type"`
	OrderID   string                 `json:"order_id"`
	UserID    string                 `json:"user_id"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// FulfillmentEvent представляет событие fulfillment-сервиса о смене
// стадии доставки заказа.
type FulfillmentEvent struct {
	OrderID        string                 `json:"order_id"`
	DeliveryStatus string                 `json:"delivery_status"`
	Timestamp      time.Time              `json:"timestamp"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, userID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		UserID:    userID,
		Status:    status,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// NewFulfillmentEvent создает новое событие доставки
func NewFulfillmentEvent(orderID, deliveryStatus string, metadata map[string]interface{}) *FulfillmentEvent {
	return &FulfillmentEvent{
		OrderID:        orderID,
		DeliveryStatus: deliveryStatus,
		Timestamp:      time.Now(),
		Metadata:       metadata,
	}
}
