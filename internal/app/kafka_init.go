package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/piecom/internal/domain"
	"github.com/vladislavdragonenkov/piecom/internal/messaging/kafka"
)

const fulfillmentConsumerGroup = "piecom-fulfillment"

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой или если произошла ошибка.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	if brokers == "" {
		return nil, nil
	}

	brokerList := strings.Split(brokers, ",")
	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// initFulfillmentConsumer собирает consumer group для входящих статусов
// доставки. Сообщения, не прошедшие retry, уходят в DLQ через producer.
func initFulfillmentConsumer(brokers string, orders domain.OrderRepository, dlqProducer *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	brokerList := strings.Split(brokers, ",")
	handler := kafka.NewFulfillmentHandler(orders, logger.WithField("component", "fulfillment-consumer"))

	consumer, err := kafka.NewConsumerWithDLQ(
		brokerList,
		fulfillmentConsumerGroup,
		[]string{kafka.TopicFulfillmentEvents},
		handler,
		dlqProducer,
		3,
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create fulfillment consumer")
		return nil, err
	}

	logger.WithField("topic", kafka.TopicFulfillmentEvents).Info("fulfillment consumer initialized")
	return consumer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
