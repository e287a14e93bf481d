package bus

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/oddsync/internal/record"
)

// MessageType is the discriminator of a message on the wire.
type MessageType string

const (
	TypePing            MessageType = "ping"
	TypePong            MessageType = "pong"
	TypeNewRecord       MessageType = "newRecord"
	TypeMultipleRecords MessageType = "multipleRecords"
	TypeSyncRequest     MessageType = "syncRequest"
	TypeSyncResponse    MessageType = "syncResponse"
	TypeStatus          MessageType = "status"
	TypeError           MessageType = "error"
)

// Payload is the closed set of message bodies. Only the types in this
// package implement it.
type Payload interface {
	Type() MessageType
	isPayload()
}

// Ping asks live peers to answer with Pong.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

// Pong answers a Ping.
type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

// NewRecord carries one record; on the wire the payload is the record itself.
type NewRecord struct {
	record.Record
}

// MultipleRecords carries a batch of records.
type MultipleRecords struct {
	Records []record.Record `json:"records"`
	Count   int             `json:"count"`
}

// SyncRequest asks live peers for their recent history.
type SyncRequest struct {
	Timestamp int64 `json:"timestamp"`
}

// SyncResponse answers a SyncRequest with recent durable records.
type SyncResponse struct {
	Records []record.Record `json:"records"`
}

// Status is an application-defined status document.
type Status map[string]any

// ErrorReport tells peers about a failure.
type ErrorReport struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

func (Ping) Type() MessageType            { return TypePing }
func (Pong) Type() MessageType            { return TypePong }
func (NewRecord) Type() MessageType       { return TypeNewRecord }
func (MultipleRecords) Type() MessageType { return TypeMultipleRecords }
func (SyncRequest) Type() MessageType     { return TypeSyncRequest }
func (SyncResponse) Type() MessageType    { return TypeSyncResponse }
func (Status) Type() MessageType          { return TypeStatus }
func (ErrorReport) Type() MessageType     { return TypeError }

func (Ping) isPayload()            {}
func (Pong) isPayload()            {}
func (NewRecord) isPayload()       {}
func (MultipleRecords) isPayload() {}
func (SyncRequest) isPayload()     {}
func (SyncResponse) isPayload()    {}
func (Status) isPayload()          {}
func (ErrorReport) isPayload()     {}

// Message is a received payload with the id of the bus that sent it.
type Message struct {
	From    string
	Payload Payload
}

// envelope is the JSON form of a message on a transport.
type envelope struct {
	Type    MessageType     `json:"type"`
	Sender  string          `json:"sender"`
	Payload json.RawMessage `json:"payload"`
}

// encode wraps p in an envelope from sender.
func encode(sender string, p Payload) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.Type(), err)
	}
	data, err := json.Marshal(envelope{Type: p.Type(), Sender: sender, Payload: body})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", p.Type(), err)
	}
	return data, nil
}

// decode parses an envelope and its typed payload.
func decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}

	var p Payload
	var err error
	switch env.Type {
	case TypePing:
		p, err = decodeAs[Ping](env.Payload)
	case TypePong:
		p, err = decodeAs[Pong](env.Payload)
	case TypeNewRecord:
		p, err = decodeAs[NewRecord](env.Payload)
	case TypeMultipleRecords:
		p, err = decodeAs[MultipleRecords](env.Payload)
	case TypeSyncRequest:
		p, err = decodeAs[SyncRequest](env.Payload)
	case TypeSyncResponse:
		p, err = decodeAs[SyncResponse](env.Payload)
	case TypeStatus:
		p, err = decodeAs[Status](env.Payload)
	case TypeError:
		p, err = decodeAs[ErrorReport](env.Payload)
	default:
		return Message{}, fmt.Errorf("decode envelope: unknown message type %q", env.Type)
	}
	if err != nil {
		return Message{}, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}

	return Message{From: env.Sender, Payload: p}, nil
}

func decodeAs[T Payload](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}
