package events

import (
	"fmt"

	"declutter-go/internal/config"
	"declutter-go/internal/declutter"
)

// Publisher is an EventPublisher that holds a connection.
type Publisher interface {
	declutter.EventPublisher
	Close() error
}

type nopPublisher struct{ declutter.NopPublisher }

func (nopPublisher) Close() error { return nil }

// NewPublisherFromConfig returns the publisher named by cfg.Type.
func NewPublisherFromConfig(cfg config.EventsConfig, logger declutter.Logger) (Publisher, error) {
	switch cfg.Type {
	case "", "none":
		return nopPublisher{}, nil
	case "nats":
		if cfg.URL == "" {
			return nil, fmt.Errorf("nats events require a url")
		}
		p, err := ConnectNATS(cfg.URL, cfg.Stream, cfg.SubjectPrefix, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown events type: %q", cfg.Type)
	}
}
