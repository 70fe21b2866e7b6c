package rabbitmq

import (
	"encoding/json"
	"fmt"
	"time"

	"reportmap/models"

	"github.com/apex/log"
	"github.com/streadway/amqp"
)

// ReportEvent is the message body published for every admitted report.
type ReportEvent struct {
	Event  string        `json:"event"`
	Report models.Report `json:"report"`
}

type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher represents a RabbitMQ publisher instance
type Publisher struct {
	conn       *amqp.Connection
	channel    channel
	exchange   string
	routingKey string
	now        func() time.Time
}

// NewPublisher dials RabbitMQ and declares a durable direct exchange.
func NewPublisher(amqpURL, exchangeName, routingKey string) (*Publisher, error) {
	conn, err := amqp.DialConfig(amqpURL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial:      amqp.DefaultDial(30 * time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.Infof("Publishing reports to exchange %s with routing key %s", exchangeName, routingKey)
	return newPublisher(conn, ch, exchangeName, routingKey), nil
}

func newPublisher(conn *amqp.Connection, ch channel, exchange, routingKey string) *Publisher {
	return &Publisher{
		conn:       conn,
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		now:        time.Now,
	}
}

// PublishReport sends a persistent JSON ReportEvent with the configured
// routing key.
func (p *Publisher) PublishReport(r models.Report) error {
	body, err := json.Marshal(ReportEvent{Event: p.routingKey, Report: r})
	if err != nil {
		return fmt.Errorf("failed to marshal report %s: %w", r.ID, err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    r.ID,
		Timestamp:    p.now(),
	}
	if err := p.channel.Publish(p.exchange, p.routingKey, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish report %s: %w", r.ID, err)
	}
	return nil
}

// Close closes the publisher connection and channel
func (p *Publisher) Close() error {
	var err error

	if p.channel != nil {
		if channelErr := p.channel.Close(); channelErr != nil {
			log.Warnf("Failed to close channel: %v", channelErr)
			err = channelErr
		}
	}

	if p.conn != nil {
		if connErr := p.conn.Close(); connErr != nil {
			log.Warnf("Failed to close connection: %v", connErr)
			if err == nil {
				err = connErr
			}
		}
	}

	return err
}
