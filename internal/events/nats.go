package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"declutter-go/internal/declutter"
)

const (
	DefaultStream        = "declutter-events"
	DefaultSubjectPrefix = "declutter"
)

// jetStream is the part of nats.JetStreamContext the publisher needs.
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSPublisher publishes domain events to a JetStream stream. Each message
// carries a fresh Nats-Msg-Id so the server drops redelivered duplicates.
type NATSPublisher struct {
	conn   *nats.Conn
	js     jetStream
	prefix string
	newID  func() string
}

var _ declutter.EventPublisher = (*NATSPublisher)(nil)

// ConnectNATS dials url, creates the stream when missing and returns a
// publisher for subjects under prefix.
func ConnectNATS(url, stream, prefix string, logger declutter.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = declutter.NewNopLogger()
	}
	if stream == "" {
		stream = DefaultStream
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	conn, err := nats.Connect(url,
		nats.Name("declutter"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}
	if err := ensureStream(js, stream, prefix); err != nil {
		conn.Close()
		return nil, err
	}

	p := newPublisher(js, prefix)
	p.conn = conn
	return p, nil
}

func newPublisher(js jetStream, prefix string) *NATSPublisher {
	return &NATSPublisher{
		js:     js,
		prefix: strings.TrimSuffix(prefix, "."),
		newID:  func() string { return uuid.New().String() },
	}
}

func ensureStream(js nats.JetStreamContext, stream, prefix string) error {
	_, err := js.StreamInfo(stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("looking up stream %s: %w", stream, err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     stream,
		Subjects: []string{prefix + ".>"},
		Storage:  nats.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("creating stream %s: %w", stream, err)
	}
	return nil
}

// Subject returns the full subject for a domain subject such as
// "files.merged".
func (p *NATSPublisher) Subject(subject string) string {
	return p.prefix + "." + subject
}

// Publish marshals payload as JSON and publishes it to the prefixed subject.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", subject, err)
	}
	if _, err := p.js.Publish(p.Subject(subject), data, nats.MsgId(p.newID()), nats.Context(ctx)); err != nil {
		return fmt.Errorf("publishing %s: %w", p.Subject(subject), err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
