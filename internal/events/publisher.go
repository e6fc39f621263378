// README: AMQP audit publisher for lifecycle transitions and overrides.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"primetransportes/internal/modules/corrida"
)

// Publisher emits one JSON message per lifecycle transition on a topic
// exchange. Administrative overrides get their own routing key so audits can
// separate them from guarded workflow progress.
type Publisher struct {
	conn     *amqp091.Connection
	exchange string
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		exchange, "topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &Publisher{conn: conn, exchange: exchange}, nil
}

type transitionMessage struct {
	CorridaID int64     `json:"corrida_id"`
	Operacao  string    `json:"operacao"`
	De        string    `json:"de,omitempty"`
	Para      string    `json:"para,omitempty"`
	Ator      string    `json:"ator,omitempty"`
	Role      string    `json:"role,omitempty"`
	Override  bool      `json:"override"`
	CriadoEm  time.Time `json:"criado_em"`
}

func (p *Publisher) Publish(ctx context.Context, e corrida.AuditEvent) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	body, err := json.Marshal(transitionMessage{
		CorridaID: int64(e.CorridaID),
		Operacao:  string(e.Operacao),
		De:        string(e.De),
		Para:      string(e.Para),
		Ator:      e.Ator,
		Role:      string(e.Role),
		Override:  e.Override,
		CriadoEm:  e.CriadoEm,
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	routingKey := fmt.Sprintf("corrida.status.%s", e.Para)
	if e.Override {
		routingKey = "corrida.override"
	}

	return ch.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    e.CriadoEm,
			DeliveryMode: amqp091.Persistent,
		},
	)
}

func (p *Publisher) Close() error {
	return p.conn.Close()
}
