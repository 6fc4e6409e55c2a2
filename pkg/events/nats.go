// Package events broadcasts domain notifications to out-of-process consumers.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/pkg/config"
	"github.com/noah-isme/timetable-api/pkg/retry"
)

// Publisher sends payloads to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close()
}

// natsConn is the subset of *nats.Conn the publisher uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSPublisher publishes through a NATS connection.
type NATSPublisher struct {
	conn   natsConn
	logger *zap.Logger
}

// NewPublisher connects to NATS when a URL is configured. An empty URL yields a
// publisher that drops every message.
func NewPublisher(ctx context.Context, cfg config.NATSConfig, retries int, logger *zap.Logger) (Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		logger.Info("nats disabled, widget snapshots will not be broadcast")
		return NopPublisher{}, nil
	}

	var conn *nats.Conn
	err := retry.Do(ctx, retries, func() error {
		c, err := nats.Connect(cfg.URL,
			nats.Name("timetable-api"),
			nats.Timeout(5*time.Second),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					logger.Warn("nats disconnected", zap.Error(err))
				}
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
			}),
		)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return newNATSPublisher(conn, logger), nil
}

func newNATSPublisher(conn natsConn, logger *zap.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, logger: logger}
}

// Publish sends raw bytes and flushes so that failures surface to the caller.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}
	p.logger.Debug("published event", zap.String("subject", subject), zap.Int("bytes", len(data)))
	return nil
}

// Close drains in-flight messages.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("nats drain failed", zap.Error(err))
	}
}

// NopPublisher discards everything.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, []byte) error { return nil }
func (NopPublisher) Close()                                        {}
