package websocket

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Message protocol definitions
// every server -> client frame is an envelope: {"event": <event>, "data": <payload>}

// Event is the envelope discriminant
type Event string

const ( // wire names, never rename => breaks existing peers
	EventEcho          Event = "echo"           // echo of an inbound frame
	EventProcessUpdate Event = "process_update" // a completed step of the process
)

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrMalformedPayload  = errors.New("malformed payload")
)

// SerializationError is returned when an outbound message cannot be encoded.
type SerializationError struct {
	Event Event
	Err   error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("failed to serialize %q message: %v", e.Event, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// OutboundMessage is one variant of the server -> client tagged union.
// Only the types in this package implement it.
type OutboundMessage interface {
	Event() Event
	isOutbound()
}

// Echo carries an opaque payload owned by the echo path.
// a JSON null payload is always held as a nil Payload
type Echo struct {
	Payload json.RawMessage
}

func (Echo) Event() Event { return EventEcho }
func (Echo) isOutbound()  {}

// ProcessUpdate reports a completed step
type ProcessUpdate struct {
	Update string `json:"update"`
}

func (ProcessUpdate) Event() Event { return EventProcessUpdate }
func (ProcessUpdate) isOutbound()  {}

// envelope is the flat two-field wire shape
type envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data"`
}

var jsonNull = []byte("null")

// processUpdateWire detects a missing update field on decode
type processUpdateWire struct {
	Update *string `json:"update"`
}

// NewProcessUpdate: constructor for process_update message
func NewProcessUpdate(update string) ProcessUpdate {
	return ProcessUpdate{Update: update}
}

// NewEcho: wraps an inbound frame for the echo path.
// valid JSON is kept as-is, anything else is sent back as a JSON string
// (invalid UTF-8 bytes become U+FFFD there)
func NewEcho(frame []byte) Echo {
	if utf8.Valid(frame) && json.Valid(frame) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, frame); err == nil {
			if bytes.Equal(buf.Bytes(), jsonNull) {
				return Echo{}
			}
			return Echo{Payload: buf.Bytes()}
		}
	}
	quoted, _ := json.Marshal(string(frame)) // marshalling a string cannot fail
	return Echo{Payload: quoted}
}

// Encode: marshal an OutboundMessage into its envelope
func Encode(msg OutboundMessage) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch m := msg.(type) {
	case ProcessUpdate:
		data, err = encodeProcessUpdate(m)
	case *ProcessUpdate:
		if m == nil {
			return nil, &SerializationError{Event: EventProcessUpdate, Err: errors.New("nil message")}
		}
		data, err = encodeProcessUpdate(*m)
	case Echo:
		data, err = encodeEcho(m)
	case *Echo:
		if m == nil {
			return nil, &SerializationError{Event: EventEcho, Err: errors.New("nil message")}
		}
		data, err = encodeEcho(*m)
	default:
		return nil, &SerializationError{Err: fmt.Errorf("unsupported message type %T", msg)}
	}
	if err != nil {
		return nil, &SerializationError{Event: msg.Event(), Err: err}
	}

	frame, err := json.Marshal(envelope{Event: msg.Event(), Data: data})
	if err != nil {
		return nil, &SerializationError{Event: msg.Event(), Err: err}
	}
	return frame, nil
}

// text frames must be valid UTF-8; encoding/json would swap bad bytes for U+FFFD
var errInvalidUTF8 = errors.New("invalid UTF-8")

func encodeProcessUpdate(m ProcessUpdate) ([]byte, error) {
	if !utf8.ValidString(m.Update) {
		return nil, fmt.Errorf("update: %w", errInvalidUTF8)
	}
	return json.Marshal(m)
}

func encodeEcho(m Echo) ([]byte, error) {
	if len(m.Payload) == 0 {
		return jsonNull, nil
	}
	if !utf8.Valid(m.Payload) {
		return nil, fmt.Errorf("payload: %w", errInvalidUTF8)
	}
	// RawMessage marshalling validates and compacts the payload
	return json.Marshal(m.Payload)
}

// Decode: unmarshal an envelope back into its variant
func Decode(frame []byte) (OutboundMessage, error) {
	var env envelope
	if err := decodeStrict(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrMalformedEnvelope)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedEnvelope)
	}

	switch env.Event {
	case EventProcessUpdate:
		var wire processUpdateWire
		if err := decodeStrict(env.Data, &wire); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Event, err)
		}
		if wire.Update == nil {
			return nil, fmt.Errorf("%w: %s: missing update", ErrMalformedPayload, env.Event)
		}
		return ProcessUpdate{Update: *wire.Update}, nil
	case EventEcho:
		if bytes.Equal(env.Data, jsonNull) {
			return Echo{}, nil
		}
		return Echo{Payload: append(json.RawMessage(nil), env.Data...)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// decodeStrict rejects unknown fields and trailing data
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		return errors.New("trailing data after object")
	}
	return nil
}
