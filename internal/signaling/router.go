package signaling

import (
	"encoding/json"
	"log/slog"

	"github.com/drawbridge-app/signal-broker/internal/broker"
	"github.com/drawbridge-app/signal-broker/internal/metrics"
)

// Router is the sole entry point for inbound signaling frames. Every
// per-message failure is local: malformed or unauthorized frames are logged
// and dropped with no reply and the connection stays open. Only the transport
// layer ever closes a connection.
type Router struct {
	log        *slog.Logger
	broker     *broker.Broker
	metrics    *metrics.Metrics
	roomSecret string
}

func NewRouter(logger *slog.Logger, b *broker.Broker, m *metrics.Metrics, roomSecret string) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		log:        logger,
		broker:     b,
		metrics:    m,
		roomSecret: roomSecret,
	}
}

func (r *Router) HandleFrame(c broker.Conn, frame []byte) {
	r.metrics.Inc(metrics.EventFrameReceived)

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		r.log.Warn("dropping malformed frame", "conn", c.ID(), "error", err)
		r.metrics.Inc(metrics.EventBadFrame)
		return
	}

	switch env.Type {
	case TypeSubscribe:
		r.handleSubscribe(c, env.Topics)
	case TypeUnsubscribe:
		for _, topic := range env.Topics {
			name, _ := SplitTopic(topic)
			r.broker.Unsubscribe(c, name)
		}
	case TypePublish:
		r.handlePublish(c, env.Topic, frame)
	case TypePing:
		if err := c.Send(pongPayload); err != nil {
			r.log.Warn("pong delivery failed", "conn", c.ID(), "error", err)
			r.metrics.Inc(metrics.EventDeliveryFailed)
		}
	default:
		r.log.Warn("dropping frame with unknown type", "conn", c.ID(), "type", env.Type)
		r.metrics.Inc(metrics.EventUnknownMessageType)
	}
}

// handleSubscribe joins each requested topic independently: a secret mismatch
// skips that topic without affecting its siblings, and the client is not told
// which topics were refused.
func (r *Router) handleSubscribe(c broker.Conn, topics []string) {
	for _, topic := range topics {
		name, secret := SplitTopic(topic)
		if r.roomSecret != "" && secret != r.roomSecret {
			r.log.Warn("rejecting subscribe with bad room secret", "conn", c.ID(), "room", name)
			r.metrics.Inc(metrics.EventSubscribeRejected)
			continue
		}
		r.broker.Subscribe(c, name)
	}
}

// handlePublish fans the original frame out verbatim so recipients see the
// full envelope, topic included, and can demux when subscribed to several
// rooms.
func (r *Router) handlePublish(c broker.Conn, topic string, frame []byte) {
	delivered, failed := r.broker.Broadcast(topic, c, frame)
	r.metrics.Add(metrics.EventDeliveryFailed, uint64(failed))
	if delivered == 0 && failed == 0 {
		// Nobody to receive it. Deliberately silent towards the sender.
		r.metrics.Inc(metrics.EventPublishNoSubscriber)
	}
}
