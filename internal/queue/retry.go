package queue

import (
	"errors"

	"github.com/OFFIS-RIT/diarygraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const maxDeliveries = 10

// HandleProcessingError sends a failed message to the retry queue, or to the
// dead letter queue once it was retried maxDeliveries times. Messages failing
// with ErrInvalidMessage go to the dead letter queue right away. The original
// delivery is acked after the republish succeeded and requeued otherwise.
func HandleProcessingError(ch Publisher, msg amqp091.Delivery, queueName string, err error) {
	retries := retryCount(msg.Headers)

	if retries >= maxDeliveries || errors.Is(err, ErrInvalidMessage) {
		dlqName := queueName + "_dlq"
		logger.Info("[Queue] Sending message to DLQ", "dlq", dlqName, "retries", retries)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp091.Publishing{
				ContentType:  msg.ContentType,
				Body:         msg.Body,
				Headers:      msg.Headers,
				DeliveryMode: amqp091.Persistent,
			},
		)
		if pubErr != nil {
			logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			_ = msg.Nack(false, true)
			return
		}
		_ = msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["x-retries"] = int32(retries + 1)

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp091.Publishing{
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			Headers:      headers,
			DeliveryMode: amqp091.Persistent,
		},
	)
	if pubErr != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func retryCount(headers amqp091.Table) int {
	switch v := headers["x-retries"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
