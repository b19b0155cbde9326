package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/piecom/internal/domain"
)

// NewFulfillmentHandler возвращает MessageHandler, применяющий события
// fulfillment-сервиса к заказам. Стадия доставки — единственное поле
// заказа, которое меняется после создания.
func NewFulfillmentHandler(orders domain.OrderRepository, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "fulfillment-handler")
	}

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := ParseFulfillmentEvent(message)
		if err != nil {
			return err
		}

		state := domain.DeliveryState(event.DeliveryStatus)
		if !state.Valid() {
			return fmt.Errorf("unknown delivery status %q for order %s", event.DeliveryStatus, event.OrderID)
		}

		if err := orders.UpdateDeliveryStatus(ctx, event.OrderID, state); err != nil {
			return fmt.Errorf("update delivery status for order %s: %w", event.OrderID, err)
		}

		logger.WithFields(log.Fields{
			"order_id":        event.OrderID,
			"delivery_status": event.DeliveryStatus,
		}).Info("delivery status updated")
		return nil
	}
}
