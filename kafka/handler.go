package kafka

import (
	"context"
	"encoding/json"

	"github.com/FASALGAF00R/Campuscore-backend/services"
	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// MessageHandler processes one consumed message. A nil error marks it.
type MessageHandler interface {
	Handle(ctx context.Context, message *sarama.ConsumerMessage) error
}

// EnvelopeHandler replays envelopes from other instances into the local
// registry.
type EnvelopeHandler struct {
	local      services.Broadcaster
	instanceID string
	logger     *zap.Logger
}

func NewEnvelopeHandler(local services.Broadcaster, instanceID string, logger *zap.Logger) *EnvelopeHandler {
	return &EnvelopeHandler{local: local, instanceID: instanceID, logger: logger}
}

func (h *EnvelopeHandler) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	if originOf(message) == h.instanceID {
		return nil
	}

	var env LiveEnvelope
	if err := json.Unmarshal(message.Value, &env); err != nil {
		// a malformed envelope will never parse, so mark it and move on
		h.logger.Warn("malformed_live_envelope",
			zap.Int32("partition", message.Partition),
			zap.Int64("offset", message.Offset),
			zap.Error(err))
		return nil
	}
	if env.Origin == h.instanceID || len(env.Rooms) == 0 {
		return nil
	}
	return h.local.Broadcast(ctx, env.Rooms, env.Event)
}
