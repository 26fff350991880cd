package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"lumina-knowledge-base/internal/model"
)

// IndexTaskPublisher queues documents for the index worker.
type IndexTaskPublisher struct {
	conn      *amqp.Connection
	queueName string

	mu sync.Mutex
	ch *amqp.Channel
}

func NewIndexTaskPublisher(conn *amqp.Connection, queueName string) *IndexTaskPublisher {
	return &IndexTaskPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *IndexTaskPublisher) Submit(ctx context.Context, documentID string) error {
	payload, err := json.Marshal(model.IndexTask{DocumentID: documentID})
	if err != nil {
		return fmt.Errorf("marshal index task failed: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			MessageId:    documentID,
		},
	); err != nil {
		// The channel is unusable after a failed publish; reopen next time.
		_ = ch.Close()
		p.ch = nil
		return fmt.Errorf("publish index task failed: %w", err)
	}
	return nil
}

// channel returns the cached publishing channel, reopening it if the broker
// closed it. Caller holds p.mu.
func (p *IndexTaskPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *IndexTaskPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}
