// Package events publishes favourite changes to Kafka so other services can
// follow what users keep.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/OCAP2/placefinder/internal/config"
	"github.com/OCAP2/placefinder/internal/geo"
	"github.com/OCAP2/placefinder/internal/reconciler"
	"github.com/OCAP2/placefinder/pkg/core"
	kafkago "github.com/segmentio/kafka-go"
)

// FavouriteChanged is the payload of a favourite change message.
type FavouriteChanged struct {
	Type      string      `json:"type"` // favourite_added or favourite_removed
	Identity  string      `json:"identity"`
	GeoKey    core.GeoKey `json:"geoKey"`
	Marker    core.Marker `json:"marker"`
	Affected  int         `json:"affected"`
	ChangedAt time.Time   `json:"changedAt"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces favourite change messages to a Kafka topic.
// It implements reconciler.Observer.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher creates a Kafka producer for the configured topic. Writes are
// asynchronous; delivery failures are logged.
func NewPublisher(cfg config.KafkaConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		Async:        true,
		Completion: func(messages []kafkago.Message, err error) {
			if err != nil {
				logger.Error("Error publishing favourite events", "count", len(messages), "error", err)
			}
		},
	}
	return newPublisher(w, logger)
}

func newPublisher(w messageWriter, logger *slog.Logger) *Publisher {
	return &Publisher{writer: w, logger: logger, now: time.Now}
}

// Observe publishes FavouriteToggled events and ignores the rest.
func (p *Publisher) Observe(ctx context.Context, e reconciler.Event) {
	ev, ok := e.(reconciler.FavouriteToggled)
	if !ok {
		return
	}
	msg, err := serializeToMessage(ev, p.now())
	if err != nil {
		p.logger.Error("Error serializing favourite event", "error", err)
		return
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Error publishing favourite event", "identity", ev.Identity, "error", err)
	}
}

// Close flushes pending messages.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a toggle into a Kafka message keyed by
// identity so one user's changes stay ordered within a partition.
func serializeToMessage(ev reconciler.FavouriteToggled, at time.Time) (kafkago.Message, error) {
	typ := "favourite_removed"
	if ev.Added {
		typ = "favourite_added"
	}
	payload := FavouriteChanged{
		Type:      typ,
		Identity:  ev.Identity,
		GeoKey:    geo.KeyOf(ev.Marker.Position),
		Marker:    ev.Marker,
		Affected:  ev.Affected,
		ChangedAt: at.UTC(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize favourite event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(ev.Identity),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(typ)},
			{Key: "changed_at", Value: []byte(payload.ChangedAt.Format(time.RFC3339))},
		},
	}, nil
}
