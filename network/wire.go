package network

import (
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"

	"github.com/luca-patrignani/mental-poker-sync/syncer"
)

const (
	// HeaderClock carries the sequence number of a request.
	HeaderClock = "Clock"
	// EncodingSnappy is the Content-Encoding of snappy block encoded bodies.
	EncodingSnappy = "snappy"
	// EventsPath prefixes the HTTP route of every event.
	EventsPath = "/events/"
	// WebSocketPath is the route of the WebSocket endpoint.
	WebSocketPath = "/ws"
)

// Envelope frames an event on a WebSocket connection.
type Envelope struct {
	ID      uint64          `json:"id"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Reply frames the acknowledgment of the envelope with the same id.
type Reply struct {
	ID    uint64     `json:"id"`
	Ack   syncer.Ack `json:"ack"`
	Error string     `json:"error,omitempty"`
}

// EncodeBody marshals v to JSON, snappy encoded when compress is set.
func EncodeBody(v any, compress bool) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding body: %w", err)
	}
	if compress {
		b = snappy.Encode(nil, b)
	}
	return b, nil
}

// DecodeBody reverses EncodeBody given the Content-Encoding of the body.
func DecodeBody(b []byte, encoding string, v any) error {
	switch encoding {
	case "", "identity":
	case EncodingSnappy:
		decoded, err := snappy.Decode(nil, b)
		if err != nil {
			return fmt.Errorf("decoding snappy body: %w", err)
		}
		b = decoded
	default:
		return fmt.Errorf("unsupported content encoding %q", encoding)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}
	return nil
}
