package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/pkg/config"
)

type connStub struct {
	subjects []string
	payloads [][]byte
	err      error
	drained  bool
}

func (c *connStub) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *connStub) FlushWithContext(context.Context) error { return nil }

func (c *connStub) Drain() error {
	c.drained = true
	return nil
}

func TestNewPublisherWithoutURLIsNop(t *testing.T) {
	pub, err := NewPublisher(context.Background(), config.NATSConfig{}, 0, nil)
	require.NoError(t, err)
	assert.IsType(t, NopPublisher{}, pub)
	assert.NoError(t, pub.Publish(context.Background(), "any", []byte(`{"a":1}`)))
}

func TestPublishSendsAndDrains(t *testing.T) {
	conn := &connStub{}
	pub := newNATSPublisher(conn, zap.NewNop())

	err := pub.Publish(context.Background(), "timetable.widget.snapshot", []byte(`{"id":"tt-1"}`))
	require.NoError(t, err)
	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "timetable.widget.snapshot", conn.subjects[0])
	assert.JSONEq(t, `{"id":"tt-1"}`, string(conn.payloads[0]))

	pub.Close()
	assert.True(t, conn.drained)
}

func TestPublishWrapsConnectionError(t *testing.T) {
	conn := &connStub{err: errors.New("connection closed")}
	pub := newNATSPublisher(conn, zap.NewNop())

	err := pub.Publish(context.Background(), "subject", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish subject")
}
