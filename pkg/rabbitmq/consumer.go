package rabbitmq

import (
	"fmt"
	"net/url"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Handler processes one delivery. Returning false re-queues it.
type Handler func(body []byte) bool

type Consumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger logrus.FieldLogger
	done   chan struct{}
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if !strings.HasSuffix(clean, "/") {
		clean += "/"
	}
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", fmt.Errorf("invalid AMQP scheme: %s", parsed.Scheme)
	}
	return clean, nil
}

func NewConsumer(amqpURL string, logger logrus.FieldLogger) (*Consumer, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.Dial(cleanURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.Qos(10, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Consumer{conn: conn, ch: ch, logger: logger.WithField("component", "rabbitmq_consumer"), done: make(chan struct{})}, nil
}

// ConsumeWithBindings binds queueName to exchange for every routing key and
// dispatches deliveries to the matching handler until the channel closes.
func (c *Consumer) ConsumeWithBindings(exchange, queueName string, bindings map[string]Handler) error {
	if len(bindings) == 0 {
		return fmt.Errorf("no bindings provided")
	}

	if err := c.ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	q, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}

	handlers := make(map[string]Handler)
	for routingKey, handler := range bindings {
		if handler == nil {
			continue
		}
		handlers[routingKey] = handler
		if err := c.ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
			return err
		}
	}

	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		defer close(c.done)
		for d := range msgs {
			dispatch(c.logger, handlers, d.RoutingKey, d.Body, d.Ack, d.Nack)
		}
	}()

	return nil
}

// dispatch routes one delivery and settles it.
func dispatch(
	logger logrus.FieldLogger,
	handlers map[string]Handler,
	routingKey string,
	body []byte,
	ack func(multiple bool) error,
	nack func(multiple, requeue bool) error,
) {
	handler, ok := handlers[routingKey]
	if !ok {
		logger.WithField("routing_key", routingKey).Warn("no handler for routing key; acknowledging to drop")
		_ = ack(false)
		return
	}
	if handler(body) {
		_ = ack(false)
		return
	}
	logger.WithField("routing_key", routingKey).Warn("handler failed; re-queuing")
	_ = nack(false, true)
}

// Close closes the channel and connection, which ends the delivery loop.
func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

// Done is closed once the delivery loop exits.
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}
