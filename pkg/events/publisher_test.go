package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEventRequiresUserAndKind(t *testing.T) {
	_, err := encodeEvent(NotificationEvent{Kind: "chat"})
	require.Error(t, err)
	_, err = encodeEvent(NotificationEvent{UserID: "u1"})
	require.Error(t, err)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	raw, err := encodeEvent(NotificationEvent{NotificationID: "n1", UserID: "u1", Kind: "chat", Title: "New message", CreatedAt: at})
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "u1", decoded["userId"])
	assert.Equal(t, "chat", decoded["kind"])
	assert.NotContains(t, decoded, "data")
}

func TestRecordingPublisher(t *testing.T) {
	var p RecordingPublisher
	require.NoError(t, p.Publish(context.Background(), NotificationEvent{UserID: "u1", Kind: "alert"}))
	require.Error(t, p.Publish(context.Background(), NotificationEvent{}))
	assert.Len(t, p.Events(), 1)
}

func TestNewAMQPPublisherRequiresURL(t *testing.T) {
	_, err := NewAMQPPublisher("  ", "")
	require.Error(t, err)
}

type fakeChannel struct {
	closed    bool
	published int
}

func (c *fakeChannel) PublishWithContext(context.Context, string, string, bool, bool, amqp.Publishing) error {
	if c.closed {
		return amqp.ErrClosed
	}
	c.published++
	return nil
}

func (c *fakeChannel) IsClosed() bool { return c.closed }
func (c *fakeChannel) Close() error   { c.closed = true; return nil }

type fakeConn struct{ closed bool }

func (c *fakeConn) Close() error { c.closed = true; return nil }

type fakeBroker struct {
	dials    int
	fail     bool
	channels []*fakeChannel
	conns    []*fakeConn
}

func (b *fakeBroker) connect(string, string) (io.Closer, amqpChannel, error) {
	b.dials++
	if b.fail {
		return nil, nil, errors.New("connection refused")
	}
	ch, conn := &fakeChannel{}, &fakeConn{}
	b.channels = append(b.channels, ch)
	b.conns = append(b.conns, conn)
	return conn, ch, nil
}

var testEvent = NotificationEvent{NotificationID: "n1", UserID: "u1", Kind: "chat"}

func TestAMQPPublisherRedialsAfterBrokerClosesChannel(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newAMQPPublisher("amqp://broker", "", broker.connect)
	require.NoError(t, err)
	p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	p.redialEvery = 0

	require.NoError(t, p.Publish(context.Background(), testEvent))
	broker.channels[0].closed = true

	require.NoError(t, p.Publish(context.Background(), testEvent))
	assert.Equal(t, 2, broker.dials)
	assert.True(t, broker.conns[0].closed)
	assert.Equal(t, 1, broker.channels[1].published)
}

func TestAMQPPublisherThrottlesRedial(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newAMQPPublisher("amqp://broker", "", broker.connect)
	require.NoError(t, err)
	p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	p.redialEvery = time.Hour

	broker.channels[0].closed = true
	require.ErrorIs(t, p.Publish(context.Background(), testEvent), errNotConnected)
	require.ErrorIs(t, p.Publish(context.Background(), testEvent), errNotConnected)
	assert.Equal(t, 1, broker.dials)
}

func TestAMQPPublisherLogsDisconnectOnce(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newAMQPPublisher("amqp://broker", "", broker.connect)
	require.NoError(t, err)
	var logs bytes.Buffer
	p.logger = slog.New(slog.NewJSONHandler(&logs, nil))
	p.redialEvery = 0

	broker.channels[0].closed = true
	broker.fail = true
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, p.Publish(context.Background(), testEvent), errNotConnected)
	}
	assert.Equal(t, 1, strings.Count(logs.String(), "amqp_publisher_disconnected"))

	broker.fail = false
	require.NoError(t, p.Publish(context.Background(), testEvent))
	assert.Contains(t, logs.String(), "amqp_publisher_reconnected")
}

func TestAMQPPublisherDoesNotRedialAfterClose(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newAMQPPublisher("amqp://broker", "", broker.connect)
	require.NoError(t, err)
	p.redialEvery = 0
	require.NoError(t, p.Close())
	require.ErrorIs(t, p.Publish(context.Background(), testEvent), errNotConnected)
	assert.Equal(t, 1, broker.dials)
}
