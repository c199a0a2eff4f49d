package types

import "encoding/json"

// The closed set of frame type tags. Inbound frames with any other tag are
// ignored by the dispatcher.
const (
	// client -> server
	MessageTypeGetInitialData    = "get-initial-data"
	MessageTypeCreateRoom        = "create-room"
	MessageTypeJoinRoom          = "join-room"
	MessageTypeLeaveRoom         = "leave-room"
	MessageTypeRenameRoom        = "rename-room"
	MessageTypeDeleteRoom        = "delete-room"
	MessageTypeSendTranscription = "send-transcription"

	// server -> client
	MessageTypeInitialData       = "initial-data"
	MessageTypeRoomUpdate        = "room-update"
	MessageTypeParticipantUpdate = "participant-update"
	MessageTypeNewTranscription  = "new-transcription"

	// both directions
	MessageTypeSignal = "signal"
)

// JSON-serialized WireMessage is what is actually sent via the Websocket
// connection. The payload stays raw here, it is decoded per type tag.
type WireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// The different types of payloads transferred from the client to here.

type CreateRoomPayload struct {
	Name      string `json:"name" mapstructure:"name"`
	CreatedBy string `json:"createdBy" mapstructure:"createdBy"`
}

type JoinRoomPayload struct {
	RoomId      string `json:"roomId" mapstructure:"roomId"`
	DisplayName string `json:"displayName" mapstructure:"displayName"`
}

type LeaveRoomPayload struct {
	RoomId string `json:"roomId" mapstructure:"roomId"`
}

type RenameRoomPayload struct {
	RoomId string `json:"roomId" mapstructure:"roomId"`
	Name   string `json:"name" mapstructure:"name"`
}

type DeleteRoomPayload struct {
	RoomId string `json:"roomId" mapstructure:"roomId"`
}

// SignalPayload carries an opaque WebRTC negotiation blob to exactly one
// peer. The signal itself is never inspected, so it is kept as raw JSON
// instead of going through mapstructure like the other payloads.
type SignalPayload struct {
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

// SignalRelayPayload is the outgoing counterpart of SignalPayload, the target
// id replaced by the sender id.
type SignalRelayPayload struct {
	From   string          `json:"from"`
	Signal json.RawMessage `json:"signal"`
}

// The different types of payloads transferred from here to the clients.

type InitialDataPayload struct {
	Rooms []*RoomInfo `json:"rooms"`
}

type RoomUpdatePayload struct {
	Rooms []*RoomInfo `json:"rooms"`
}

type ParticipantUpdatePayload struct {
	RoomId       string   `json:"roomId"`
	Participants []string `json:"participants"`
}
