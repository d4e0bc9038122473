package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"safety-map/internal/domain"
	"safety-map/internal/infra/metrics"
)

// ErrQueueClosed возвращается, когда брокер закрыл канал доставки.
var ErrQueueClosed = errors.New("queue closed")

// RabbitEventBus публикует события в fanout exchange и читает их из очереди, привязанной к нему.
type RabbitEventBus struct {
	conn     *amqp091.Connection
	exchange string
	queue    string

	pubMu sync.Mutex
	pubCh *amqp091.Channel

	consMu     sync.Mutex
	consCh     *amqp091.Channel
	deliveries <-chan amqp091.Delivery
}

var _ domain.EventQueue = (*RabbitEventBus)(nil)

// DialRabbit подключается к брокеру.
func DialRabbit(url string) (*amqp091.Connection, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	return conn, nil
}

// NewRabbitEventBus открывает канал публикации и объявляет durable fanout exchange.
// Если задана очередь, она объявляется и привязывается сразу: события не теряются, пока обработчик не запущен.
func NewRabbitEventBus(conn *amqp091.Connection, exchange, queue string) (*RabbitEventBus, error) {
	if conn == nil {
		return nil, errors.New("rabbitmq connection is nil")
	}
	if exchange == "" {
		return nil, errors.New("exchange name is empty")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp091.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	if queue != "" {
		if err := declareQueue(ch, exchange, queue); err != nil {
			_ = ch.Close()
			return nil, err
		}
	}
	return &RabbitEventBus{conn: conn, exchange: exchange, queue: queue, pubCh: ch}, nil
}

// Publish отправляет событие в exchange.
func (b *RabbitEventBus) Publish(ctx context.Context, event domain.StoryEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	start := time.Now()
	err = b.pubCh.PublishWithContext(ctx, b.exchange, "", false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.ID,
		Type:         string(event.Type),
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", b.exchange, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Receive блокирующе читает событие. Потребитель запускается при первом вызове.
// Неразборчивое сообщение отбрасывается без повтора.
func (b *RabbitEventBus) Receive(ctx context.Context) (domain.StoryEvent, domain.AckFunc, error) {
	deliveries, err := b.consume()
	if err != nil {
		return domain.StoryEvent{}, nil, err
	}
	select {
	case <-ctx.Done():
		return domain.StoryEvent{}, nil, ctx.Err()
	case d, ok := <-deliveries:
		if !ok {
			return domain.StoryEvent{}, nil, ErrQueueClosed
		}
		var event domain.StoryEvent
		if err := json.Unmarshal(d.Body, &event); err != nil {
			_ = d.Nack(false, false)
			return domain.StoryEvent{}, nil, fmt.Errorf("decode event: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return d.Ack(false)
			}
			return d.Nack(false, true)
		}
		return event, ack, nil
	}
}

func (b *RabbitEventBus) consume() (<-chan amqp091.Delivery, error) {
	b.consMu.Lock()
	defer b.consMu.Unlock()
	if b.deliveries != nil {
		return b.deliveries, nil
	}
	if b.queue == "" {
		return nil, errors.New("queue name is empty")
	}
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareQueue(ch, b.exchange, b.queue); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(b.queue, fmt.Sprintf("notifier-%d", time.Now().UnixNano()), false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume %q: %w", b.queue, err)
	}
	b.consCh = ch
	b.deliveries = deliveries
	return deliveries, nil
}

func declareQueue(ch *amqp091.Channel, exchange, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q: %w", queue, err)
	}
	if err := ch.QueueBind(queue, "", exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %q: %w", queue, err)
	}
	return nil
}

// Close закрывает каналы. Соединение закрывает владелец.
func (b *RabbitEventBus) Close() error {
	var errs []error
	b.pubMu.Lock()
	if b.pubCh != nil {
		errs = append(errs, b.pubCh.Close())
	}
	b.pubMu.Unlock()
	b.consMu.Lock()
	if b.consCh != nil {
		errs = append(errs, b.consCh.Close())
	}
	b.consMu.Unlock()
	return errors.Join(errs...)
}
