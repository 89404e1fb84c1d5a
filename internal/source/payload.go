package source

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// PayloadKind tags which shape a payload arrived in
type PayloadKind int

const (
	// PayloadFlat is a bare JSON array of rows
	PayloadFlat PayloadKind = iota
	// PayloadNested is an {"endpoint": ..., "data": [...]} envelope
	PayloadNested
	// PayloadEvents carries call events that are already normalized
	PayloadEvents
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadFlat:
		return "flat"
	case PayloadNested:
		return "nested"
	case PayloadEvents:
		return "events"
	default:
		return fmt.Sprintf("PayloadKind(%d)", int(k))
	}
}

// Payload is one page of rows, its shape resolved once by DecodePayload
type Payload struct {
	Kind     PayloadKind
	Endpoint string            // set for nested payloads
	Rows     []json.RawMessage // flat and nested payloads
	Events   []types.CallEvent // event payloads
}

// Len returns the number of rows or events
func (p Payload) Len() int {
	if p.Kind == PayloadEvents {
		return len(p.Events)
	}
	return len(p.Rows)
}

// EventsPayload wraps normalized call events
func EventsPayload(events []types.CallEvent) Payload {
	return Payload{Kind: PayloadEvents, Events: events}
}

type nestedEnvelope struct {
	Endpoint string            `json:"endpoint"`
	Data     []json.RawMessage `json:"data"`
}

// DecodePayload resolves the shape of a raw page: a JSON array is flat, an
// object with a data array is nested. Nothing downstream inspects the shape
// again.
func DecodePayload(raw []byte) (Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Payload{}, fmt.Errorf("empty payload")
	}

	switch raw[0] {
	case '[':
		var rows []json.RawMessage
		if err := json.Unmarshal(raw, &rows); err != nil {
			return Payload{}, fmt.Errorf("failed to parse flat payload: %w", err)
		}
		return Payload{Kind: PayloadFlat, Rows: rows}, nil
	case '{':
		var env nestedEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return Payload{}, fmt.Errorf("failed to parse nested payload: %w", err)
		}
		if env.Data == nil {
			return Payload{}, fmt.Errorf("nested payload has no data array")
		}
		return Payload{Kind: PayloadNested, Endpoint: env.Endpoint, Rows: env.Data}, nil
	default:
		return Payload{}, fmt.Errorf("unexpected payload starting with %q", raw[0])
	}
}

// Metadata tracks how far a stream has progressed
type Metadata struct {
	Completed int  `json:"completed"` // sources finished so far
	Total     int  `json:"total"`     // sources in the stream
	IsLast    bool `json:"isLast"`    // last page of this source
}

// Result is one partial result of a stream: a page of one project's source,
// or the error that ended it
type Result struct {
	Project  string
	Kind     types.SourceKind
	Endpoint string
	Page     int
	Payload  Payload
	Err      error
	Metadata Metadata
}

// Envelope is the serialized form of a Result
type Envelope struct {
	Endpoint string          `json:"endpoint"`
	Data     json.RawMessage `json:"data"`
	Error    *EnvelopeError  `json:"error,omitempty"`
	Metadata Metadata        `json:"metadata"`
}

// EnvelopeError is the error member of an Envelope
type EnvelopeError struct {
	Message string `json:"message"`
}

// ParseEnvelope reads a serialized result; its data member may be flat or nested
func ParseEnvelope(project string, kind types.SourceKind, raw []byte) (Result, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Result{}, fmt.Errorf("failed to parse result envelope: %w", err)
	}

	res := Result{Project: project, Kind: kind, Endpoint: env.Endpoint, Metadata: env.Metadata}
	if env.Error != nil {
		res.Err = fmt.Errorf("%s", env.Error.Message)
		return res, nil
	}

	payload, err := DecodePayload(env.Data)
	if err != nil {
		return Result{}, err
	}
	if payload.Endpoint == "" {
		payload.Endpoint = env.Endpoint
	}
	res.Payload = payload
	return res, nil
}
