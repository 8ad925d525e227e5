package protocol

import "encoding/json"

const Version = "1.0"

// Message types. Outbound commands and inbound mirrors share one namespace;
// the relay broadcasts most of them back to every session member.
const (
	TypeHello   = "hello"
	TypeWelcome = "welcome"

	TypeCreateSession = "create-session"
	TypeJoinSession   = "join-session"
	TypeLeaveSession  = "leave-session"

	TypeSessionCreated = "session-created"
	TypeSessionJoined  = "session-joined"
	TypeSessionUpdated = "session-updated"

	TypePlayerJoined  = "player-joined"
	TypePlayerLeft    = "player-left"
	TypePlayerUpdated = "player-updated"

	TypeTerrainModify   = "terrain-modify"
	TypeTerrainModified = "terrain-modified"
	TypeTerrainReset    = "terrain-reset"

	TypeCursorMove  = "cursor-move"
	TypeCursorMoved = "cursor-moved"

	TypeChatMessage     = "chat-message"
	TypeSettingsUpdate  = "settings-update"
	TypeObjectiveUpdate = "objective-updated"
	TypeObjectiveDone   = "objective-completed"

	TypeError            = "error"
	TypePermissionDenied = "permission-denied"
)

// Envelope routes every message. Sender carries the channel-assigned client
// identity so receivers can discard their own mirrored traffic.
type Envelope struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Sender          string          `json:"sender,omitempty"`
	SessionID       string          `json:"session_id,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	Sender          string `json:"sender,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

func Encode(typ, sender, sessionID string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Type:            typ,
		ProtocolVersion: Version,
		Sender:          sender,
		SessionID:       sessionID,
		Payload:         raw,
	})
}
