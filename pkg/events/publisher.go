// Package events fans notification events out to other consumers (push
// gateways, analytics) over a RabbitMQ exchange.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// NotificationEvent is published whenever a notification row is written.
type NotificationEvent struct {
	NotificationID string            `json:"notificationId"`
	UserID         string            `json:"userId"`
	Kind           string            `json:"kind"`
	Title          string            `json:"title"`
	Data           map[string]string `json:"data,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Publisher emits notification events.
type Publisher interface {
	Publish(ctx context.Context, event NotificationEvent) error
	Close() error
}

// NopPublisher drops events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, NotificationEvent) error { return nil }
func (NopPublisher) Close() error                                     { return nil }

// AMQPPublisher publishes JSON events to a durable fanout exchange. A channel
// closed by the broker is redialed on the next Publish, at most once per
// redialEvery.
type AMQPPublisher struct {
	url         string
	exchange    string
	connect     connectFunc
	redialEvery time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	conn     io.Closer
	ch       amqpChannel
	lastDial time.Time
	down     bool
	closed   bool
}

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type connectFunc func(url, exchange string) (io.Closer, amqpChannel, error)

var errNotConnected = errors.New("amqp publisher not connected")

// NewAMQPPublisher dials url and declares exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	return newAMQPPublisher(url, exchange, dialAMQP)
}

func newAMQPPublisher(url, exchange string, connect connectFunc) (*AMQPPublisher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("amqp url required")
	}
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = "healthconnect.notifications"
	}
	conn, ch, err := connect(url, exchange)
	if err != nil {
		return nil, err
	}
	return &AMQPPublisher{
		url:         url,
		exchange:    exchange,
		connect:     connect,
		redialEvery: 5 * time.Second,
		logger:      slog.Default().With("exchange", exchange),
		conn:        conn,
		ch:          ch,
		lastDial:    time.Now(),
	}, nil
}

func dialAMQP(url, exchange string) (io.Closer, amqpChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return conn, ch, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event NotificationEvent) error {
	body, err := encodeEvent(event)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureChannel(); err != nil {
		return err
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.NotificationID,
		Timestamp:    event.CreatedAt,
		Type:         "notification." + event.Kind,
		Body:         body,
	})
	if err != nil && p.ch.IsClosed() {
		p.markDown(err)
	}
	return err
}

// ensureChannel redials when the channel is gone. Callers hold p.mu.
func (p *AMQPPublisher) ensureChannel() error {
	if p.closed {
		return errNotConnected
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.markDown(amqp.ErrClosed)
	if time.Since(p.lastDial) < p.redialEvery {
		return errNotConnected
	}
	p.lastDial = time.Now()
	conn, ch, err := p.connect(p.url, p.exchange)
	if err != nil {
		p.logger.Warn("amqp_redial_failed", "err", err)
		return fmt.Errorf("%w: %v", errNotConnected, err)
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch, p.down = conn, ch, false
	p.logger.Info("amqp_publisher_reconnected")
	return nil
}

// markDown logs the first failure of a connection at error level.
func (p *AMQPPublisher) markDown(cause error) {
	if p.down {
		return
	}
	p.down = true
	p.logger.Error("amqp_publisher_disconnected", "err", cause)
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var chErr, connErr error
	if p.ch != nil && !p.ch.IsClosed() {
		chErr = p.ch.Close()
	}
	if p.conn != nil {
		connErr = p.conn.Close()
	}
	p.ch, p.conn, p.closed = nil, nil, true
	return errors.Join(chErr, connErr)
}

func encodeEvent(event NotificationEvent) ([]byte, error) {
	if strings.TrimSpace(event.UserID) == "" {
		return nil, errors.New("event user id required")
	}
	if strings.TrimSpace(event.Kind) == "" {
		return nil, errors.New("event kind required")
	}
	return json.Marshal(event)
}

// RecordingPublisher keeps published events in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []NotificationEvent
}

func (r *RecordingPublisher) Publish(_ context.Context, event NotificationEvent) error {
	if _, err := encodeEvent(event); err != nil {
		return err
	}
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

func (r *RecordingPublisher) Close() error { return nil }

// Events returns a copy of the recorded events.
func (r *RecordingPublisher) Events() []NotificationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NotificationEvent, len(r.events))
	copy(out, r.events)
	return out
}
