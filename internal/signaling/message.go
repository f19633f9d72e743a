package signaling

import "strings"

// Message types exchanged over a signaling connection. Publish payloads are
// opaque: the broker forwards the original frame verbatim and only reads the
// fields below for routing.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePublish     = "publish"
	TypePing        = "ping"
	TypePong        = "pong"
)

// Envelope is the routed subset of an inbound frame. Any additional fields
// (WebRTC offers, answers, ICE candidates) ride along untouched in the raw
// frame bytes.
type Envelope struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics,omitempty"`
	Topic  string   `json:"topic,omitempty"`
}

var pongPayload = []byte(`{"type":"pong"}`)

// topicSecretDelimiter separates a room name from its access secret in a
// subscribed topic. Only the first occurrence is significant, so room secrets
// may themselves contain "/".
const topicSecretDelimiter = "/"

// SplitTopic extracts the room name and optional secret from a topic
// identifier of the form "<name>/<secret>".
func SplitTopic(topic string) (name, secret string) {
	name, secret, _ = strings.Cut(topic, topicSecretDelimiter)
	return name, secret
}
