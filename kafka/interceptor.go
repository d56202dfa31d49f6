package kafka

import "github.com/IBM/sarama"

const OriginHeader = "x-origin-instance"

// OriginInterceptor tags outgoing messages with the publishing instance so
// consumers can skip their own envelopes.
type OriginInterceptor struct {
	instanceID string
}

func NewOriginInterceptor(instanceID string) *OriginInterceptor {
	return &OriginInterceptor{instanceID: instanceID}
}

func (i *OriginInterceptor) OnSend(msg *sarama.ProducerMessage) {
	for _, h := range msg.Headers {
		if string(h.Key) == OriginHeader {
			return
		}
	}
	msg.Headers = append(msg.Headers, sarama.RecordHeader{
		Key:   []byte(OriginHeader),
		Value: []byte(i.instanceID),
	})
}

func originOf(msg *sarama.ConsumerMessage) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == OriginHeader {
			return string(h.Value)
		}
	}
	return ""
}
