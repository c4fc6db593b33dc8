package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// DefaultQueue is used when no queue name is configured.
const DefaultQueue = "sirene.archives"

type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends archive-ready messages to a durable RabbitMQ queue.
type Publisher struct {
	conn  *amqp.Connection
	ch    channel
	queue string
}

func DialPublisher(url, queue string) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("error opening channel: %w", err)
	}

	p, err := newPublisher(ch, queue)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, err
	}

	p.conn = conn

	return p, nil
}

func newPublisher(ch channel, queue string) (*Publisher, error) {
	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return nil, fmt.Errorf("error declaring queue %s: %w", queue, err)
	}

	return &Publisher{ch: ch, queue: queue}, nil
}

// ArchiveReady publishes msg as a persistent JSON message.
func (p *Publisher) ArchiveReady(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("error encoding message: %w", err)
	}

	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.RunID,
		Timestamp:    msg.FinishedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("error publishing to %s: %w", p.queue, err)
	}

	zerolog.Ctx(ctx).Info().Str("queue", p.queue).Str("archive", msg.Archive).Msg("archive notification published")

	return nil
}

func (p *Publisher) Close() error {
	err := p.ch.Close()

	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}

	return err
}
