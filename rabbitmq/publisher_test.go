package rabbitmq

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"reportmap/models"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	exchange string
	key      string
	msgs     []amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.exchange, f.key = exchange, key
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublishReport(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(nil, ch, "cleanapp", "report.created")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	r := models.Report{ID: "r1", Latitude: 41.8781, Longitude: -87.6298, Status: models.StatusReported, CreatedAt: now}
	require.NoError(t, p.PublishReport(r))

	require.Len(t, ch.msgs, 1)
	assert.Equal(t, "cleanapp", ch.exchange)
	assert.Equal(t, "report.created", ch.key)
	msg := ch.msgs[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "r1", msg.MessageId)
	assert.Equal(t, now, msg.Timestamp)

	var ev ReportEvent
	require.NoError(t, json.Unmarshal(msg.Body, &ev))
	assert.Equal(t, "report.created", ev.Event)
	assert.Equal(t, r, ev.Report)
}

func TestPublishReportError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newPublisher(nil, ch, "cleanapp", "report.created")
	err := p.PublishReport(models.Report{ID: "r1"})
	assert.ErrorContains(t, err, "channel closed")
	assert.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
