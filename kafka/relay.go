package kafka

import (
	"context"
	"fmt"

	"github.com/FASALGAF00R/Campuscore-backend/services"
	"go.uber.org/zap"
)

// LiveEnvelope carries one broadcast between instances.
type LiveEnvelope struct {
	Rooms  []string       `json:"rooms"`
	Event  services.Event `json:"event"`
	Origin string         `json:"origin"`
}

// Relay delivers to the local registry and then publishes the same frame
// for every other instance.
type Relay struct {
	producer   *Producer
	topic      string
	instanceID string
	local      services.Broadcaster
	logger     *zap.Logger
}

func NewRelay(producer *Producer, topic, instanceID string, local services.Broadcaster, logger *zap.Logger) *Relay {
	return &Relay{
		producer:   producer,
		topic:      topic,
		instanceID: instanceID,
		local:      local,
		logger:     logger,
	}
}

func (r *Relay) Broadcast(ctx context.Context, rooms []string, ev services.Event) error {
	if err := r.local.Broadcast(ctx, rooms, ev); err != nil {
		r.logger.Warn("local_broadcast_failed", zap.String("event", ev.Name), zap.Error(err))
	}

	env := LiveEnvelope{Rooms: rooms, Event: ev, Origin: r.instanceID}
	if err := r.producer.SendMessage(r.topic, partitionKey(rooms, ev), env); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Name, err)
	}
	return nil
}

// Frames of one request share a partition so they arrive in order.
func partitionKey(rooms []string, ev services.Event) string {
	if p, ok := ev.Payload.(services.EventPayload); ok && p.RequestID != "" {
		return p.RequestID
	}
	if len(rooms) > 0 {
		return rooms[0]
	}
	return ev.Name
}
