package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Type tags every signaling frame in either direction.
type Type string

const (
	// Client to server.
	TypeCreateRoom Type = "create-room"
	TypeJoinRoom   Type = "join-room"
	TypeLeave      Type = "leave"

	// Both directions. Client to server it carries an addressed opaque
	// payload; server to client it is the relayed copy.
	TypeSignal Type = "signal"

	// Server to client.
	TypeJoined    Type = "joined"
	TypeNewPeer   Type = "new-peer"
	TypePeerLeft  Type = "peer-left"
	TypeRoomError Type = "room-error"
)

const (
	// MaxRoomIDLength bounds user-supplied room identifiers.
	MaxRoomIDLength = 64

	// MaxNameLength bounds display names; longer names are truncated, not
	// rejected, since they are cosmetic.
	MaxNameLength = 64
)

var (
	ErrUnknownType   = errors.New("protocol: unknown message type")
	ErrInvalidRoomID = errors.New("protocol: invalid room id")
	errMissingTo     = errors.New("protocol: signal missing payload.to")
	errMissingData   = errors.New("protocol: signal missing payload.data")
)

// ClientEnvelope is a frame sent by a client to the server.
type ClientEnvelope struct {
	Type    Type           `json:"type"`
	RoomID  string         `json:"roomId,omitempty"`
	Payload *ClientPayload `json:"payload,omitempty"`
}

// ClientPayload is the tag-dependent body of a ClientEnvelope. Name is used
// by create-room/join-room; To and Data by signal. Data is opaque to the
// server and relayed byte-for-byte.
type ClientPayload struct {
	Name string          `json:"name,omitempty"`
	To   string          `json:"to,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ParseClientEnvelope decodes and validates one inbound frame. Unknown fields
// and trailing data are rejected so a malformed frame can never be half
// applied.
func ParseClientEnvelope(data []byte) (ClientEnvelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env ClientEnvelope
	if err := dec.Decode(&env); err != nil {
		return ClientEnvelope{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return ClientEnvelope{}, fmt.Errorf("protocol: unexpected trailing data")
	}
	if err := env.Validate(); err != nil {
		return ClientEnvelope{}, err
	}
	return env, nil
}

func (e ClientEnvelope) Validate() error {
	switch e.Type {
	case TypeCreateRoom, TypeJoinRoom:
		if err := ValidateRoomID(e.RoomID); err != nil {
			return err
		}
	case TypeLeave:
		if e.RoomID != "" || e.Payload != nil {
			return fmt.Errorf("protocol: leave has unexpected fields")
		}
	case TypeSignal:
		if err := ValidateRoomID(e.RoomID); err != nil {
			return err
		}
		if e.Payload == nil || e.Payload.To == "" {
			return errMissingTo
		}
		if len(e.Payload.Data) == 0 {
			return errMissingData
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	return nil
}

// ValidateRoomID enforces the conservative token shape for user-supplied room
// identifiers: 1..MaxRoomIDLength bytes of [A-Za-z0-9._-]. Identifiers are
// case-sensitive and never normalized.
func ValidateRoomID(id string) error {
	if id == "" || len(id) > MaxRoomIDLength {
		return ErrInvalidRoomID
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
		default:
			return ErrInvalidRoomID
		}
	}
	return nil
}

// PeerInfo identifies one room member in joined/new-peer frames.
type PeerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ServerEnvelope is a frame sent by the server to a client. It is the decoded
// union of all server-to-client kinds; which fields are meaningful depends on
// Type.
type ServerEnvelope struct {
	Type Type `json:"type"`

	// joined: the caller's assigned id. new-peer/peer-left: the subject
	// member's id.
	ID string `json:"id,omitempty"`

	// new-peer and relayed signal frames carry the subject's display name.
	Name string `json:"name,omitempty"`

	// joined: current members of the room, excluding the caller.
	Peers []PeerInfo `json:"peers,omitempty"`

	// signal: the sender's member id and the opaque payload.
	From string          `json:"from,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`

	// room-error: human-readable rejection reason.
	Message string `json:"message,omitempty"`
}

func Joined(id string, peers []PeerInfo) ServerEnvelope {
	return ServerEnvelope{Type: TypeJoined, ID: id, Peers: peers}
}

func NewPeer(id, name string) ServerEnvelope {
	return ServerEnvelope{Type: TypeNewPeer, ID: id, Name: name}
}

func PeerLeft(id string) ServerEnvelope {
	return ServerEnvelope{Type: TypePeerLeft, ID: id}
}

func RelayedSignal(from, name string, data json.RawMessage) ServerEnvelope {
	return ServerEnvelope{Type: TypeSignal, From: from, Name: name, Data: data}
}

func RoomError(message string) ServerEnvelope {
	return ServerEnvelope{Type: TypeRoomError, Message: message}
}
