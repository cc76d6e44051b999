// Package queue moves notifications through RabbitMQ: the API publishes
// them to a durable queue and a consumer hands them to the sender.
package queue

import (
    "encoding/json"
    "errors"
    "fmt"

    "github.com/iliyamo/event-ticketing/internal/notify"
)

// envelopeVersion is bumped when Message changes incompatibly.
const envelopeVersion = 1

// Envelope is the body of every notification published to the broker.
type Envelope struct {
    Version int            `json:"v"`
    Message notify.Message `json:"message"`
}

var errNoKind = errors.New("message has no kind")

// Encode wraps m in an envelope and marshals it.
func Encode(m notify.Message) ([]byte, error) {
    if m.Kind == "" {
        return nil, errNoKind
    }
    return json.Marshal(Envelope{Version: envelopeVersion, Message: m})
}

// Decode unmarshals a broker body.  Unknown versions are rejected so an
// older consumer does not render a message it cannot understand.
func Decode(body []byte) (notify.Message, error) {
    var env Envelope
    if err := json.Unmarshal(body, &env); err != nil {
        return notify.Message{}, fmt.Errorf("unmarshal: %w", err)
    }
    if env.Version != envelopeVersion {
        return notify.Message{}, fmt.Errorf("unsupported envelope version %d", env.Version)
    }
    if env.Message.Kind == "" {
        return notify.Message{}, errNoKind
    }
    return env.Message, nil
}
