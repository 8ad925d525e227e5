package channel

import (
	"encoding/json"
	"log"
	"time"

	"groundcrew/internal/protocol"
)

// Transport is the narrow send surface of the underlying reliable, ordered,
// bidirectional message channel. Inbound bytes are pushed into the adapter
// via HandleRaw by whoever owns the read loop.
type Transport interface {
	Send(b []byte) error
}

// Adapter maps domain events one-to-one onto channel messages and back. The
// relay mirrors session traffic to every member including the sender, so the
// adapter tags outbound messages with the channel-assigned client id and
// drops inbound messages carrying its own tag.
type Adapter struct {
	transport Transport
	log       *log.Logger

	clientID  string
	sessionID string

	events chan Event

	dropped int // malformed or unrecognized inbound messages
}

func NewAdapter(t Transport, logger *log.Logger, buf int) *Adapter {
	if buf <= 0 {
		buf = 64
	}
	return &Adapter{
		transport: t,
		log:       logger,
		events:    make(chan Event, buf),
	}
}

// Events is consumed by the coordinator loop.
func (a *Adapter) Events() <-chan Event { return a.events }

func (a *Adapter) ClientID() string { return a.clientID }

func (a *Adapter) SetSessionID(id string) { a.sessionID = id }

// Dropped reports how many inbound messages were discarded as malformed.
func (a *Adapter) Dropped() int { return a.dropped }

// HandleConnected records the channel-assigned identity from the welcome
// handshake and surfaces the transition.
func (a *Adapter) HandleConnected(clientID string) {
	a.clientID = clientID
	a.emit(Connected{ClientID: clientID})
}

// HandleDisconnected surfaces the transition. Remote cursor invalidation is
// the coordinator's job; it holds the roster.
func (a *Adapter) HandleDisconnected() {
	a.emit(Disconnected{})
}

// HandleRaw decodes one inbound channel message. Malformed or unrecognized
// payloads are dropped and logged, never fatal.
func (a *Adapter) HandleRaw(b []byte) {
	base, err := protocol.DecodeBase(b)
	if err != nil {
		a.drop("undecodable message", err)
		return
	}
	if base.ProtocolVersion != "" && base.ProtocolVersion != protocol.Version {
		a.drop("protocol version "+base.ProtocolVersion, nil)
		return
	}
	if a.isEcho(base) {
		return
	}

	var env protocol.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		a.drop("bad envelope", err)
		return
	}

	switch base.Type {
	case protocol.TypeWelcome:
		var m protocol.WelcomeMsg
		if !a.payload(env, &m) {
			return
		}
		a.HandleConnected(m.ClientID)
	case protocol.TypeSessionCreated:
		var m protocol.SessionInfo
		if !a.payload(env, &m) {
			return
		}
		a.sessionID = m.SessionID
		a.emit(SessionCreated{Session: m})
	case protocol.TypeSessionJoined:
		var m protocol.SessionInfo
		if !a.payload(env, &m) {
			return
		}
		a.sessionID = m.SessionID
		a.emit(SessionJoined{Session: m})
	case protocol.TypeSessionUpdated:
		var m protocol.SessionInfo
		if !a.payload(env, &m) {
			return
		}
		a.emit(SessionUpdated{Session: m})
	case protocol.TypePlayerJoined:
		var m protocol.PlayerInfo
		if !a.payload(env, &m) {
			return
		}
		a.emit(PlayerJoined{Player: m})
	case protocol.TypePlayerLeft:
		var m protocol.PlayerInfo
		if !a.payload(env, &m) {
			return
		}
		a.emit(PlayerLeft{PlayerID: m.PlayerID})
	case protocol.TypePlayerUpdated:
		var m protocol.PlayerInfo
		if !a.payload(env, &m) {
			return
		}
		a.emit(PlayerUpdated{Player: m})
	case protocol.TypeCursorMoved, protocol.TypeCursorMove:
		var m protocol.CursorMovedMsg
		if !a.payload(env, &m) {
			return
		}
		a.emit(CursorMoved{PlayerID: m.PlayerID, Cursor: m.Cursor})
	case protocol.TypeTerrainModified, protocol.TypeTerrainModify:
		var m protocol.TerrainEdit
		if !a.payload(env, &m) {
			return
		}
		a.emit(TerrainModified{Edit: m})
	case protocol.TypeTerrainReset:
		var m protocol.TerrainResetMsg
		if !a.payload(env, &m) {
			return
		}
		a.emit(TerrainReset{PlayerID: m.PlayerID, PlayerName: m.PlayerName})
	case protocol.TypeChatMessage:
		var m protocol.ChatMsg
		if !a.payload(env, &m) {
			return
		}
		a.emit(ChatReceived{Message: m})
	case protocol.TypeObjectiveUpdate:
		var m protocol.ObjectiveInfo
		if !a.payload(env, &m) {
			return
		}
		a.emit(ObjectiveUpdated{Objective: m})
	case protocol.TypeObjectiveDone:
		var m protocol.ObjectiveDoneMsg
		if !a.payload(env, &m) {
			return
		}
		a.emit(ObjectiveCompleted{Objective: m.Objective, PlayerID: m.PlayerID})
	case protocol.TypeSettingsUpdate:
		var m protocol.SettingsInfo
		if !a.payload(env, &m) {
			return
		}
		a.emit(SettingsChanged{Settings: m})
	case protocol.TypeError:
		var m protocol.ErrorMsg
		if !a.payload(env, &m) {
			return
		}
		a.emit(ErrorReceived{Message: m.Message, Code: m.Code})
	case protocol.TypePermissionDenied:
		var m protocol.PermissionDeniedMsg
		if !a.payload(env, &m) {
			return
		}
		a.emit(PermissionDenied{Action: m.Action, Reason: m.Reason})
	default:
		a.drop("unrecognized type "+base.Type, nil)
	}
}

// isEcho reports whether an inbound message mirrors our own prior outbound
// action. Only mutation-style traffic is ever self-tagged; session lifecycle
// replies from the relay are always accepted.
func (a *Adapter) isEcho(base protocol.BaseMessage) bool {
	if a.clientID == "" || base.Sender != a.clientID {
		return false
	}
	switch base.Type {
	case protocol.TypeTerrainModify, protocol.TypeTerrainModified,
		protocol.TypeCursorMove, protocol.TypeCursorMoved,
		protocol.TypeTerrainReset, protocol.TypeChatMessage,
		protocol.TypeSettingsUpdate:
		return true
	}
	return false
}

func (a *Adapter) payload(env protocol.Envelope, v any) bool {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		a.drop("bad "+env.Type+" payload", err)
		return false
	}
	return true
}

func (a *Adapter) drop(what string, err error) {
	a.dropped++
	if a.log != nil {
		if err != nil {
			a.log.Printf("drop inbound: %s: %v", what, err)
		} else {
			a.log.Printf("drop inbound: %s", what)
		}
	}
}

func (a *Adapter) emit(e Event) {
	select {
	case a.events <- e:
	default:
		if a.log != nil {
			a.log.Printf("event queue full, dropping %T", e)
		}
	}
}

// Outbound surface. Every local mutation with a network effect is sent
// immediately, tagged with the local identity.

func (a *Adapter) send(typ string, payload any) error {
	b, err := protocol.Encode(typ, a.clientID, a.sessionID, payload)
	if err != nil {
		return err
	}
	return a.transport.Send(b)
}

func (a *Adapter) SendHello(name string, maxQueue int) error {
	return a.send(protocol.TypeHello, protocol.HelloMsg{PlayerName: name, MaxQueue: maxQueue})
}

func (a *Adapter) SendCreateSession(m protocol.CreateSessionMsg) error {
	return a.send(protocol.TypeCreateSession, m)
}

func (a *Adapter) SendJoinSession(m protocol.JoinSessionMsg) error {
	return a.send(protocol.TypeJoinSession, m)
}

func (a *Adapter) SendLeaveSession() error {
	return a.send(protocol.TypeLeaveSession, struct{}{})
}

func (a *Adapter) SendTerrainEdit(e protocol.TerrainEdit) error {
	return a.send(protocol.TypeTerrainModify, e)
}

func (a *Adapter) SendTerrainReset(playerID, playerName string) error {
	return a.send(protocol.TypeTerrainReset, protocol.TerrainResetMsg{PlayerID: playerID, PlayerName: playerName})
}

func (a *Adapter) SendCursor(playerID string, c protocol.CursorInfo) error {
	return a.send(protocol.TypeCursorMove, protocol.CursorMovedMsg{PlayerID: playerID, Cursor: c})
}

func (a *Adapter) SendChat(playerID, playerName, text string, now time.Time) error {
	return a.send(protocol.TypeChatMessage, protocol.ChatMsg{
		PlayerID:   playerID,
		PlayerName: playerName,
		Text:       text,
		AtUnixMs:   now.UnixMilli(),
	})
}

func (a *Adapter) SendSettings(s protocol.SettingsInfo) error {
	return a.send(protocol.TypeSettingsUpdate, s)
}

func (a *Adapter) SendPlayerLeft(p protocol.PlayerInfo) error {
	return a.send(protocol.TypePlayerLeft, p)
}

func (a *Adapter) SendPlayerUpdated(p protocol.PlayerInfo) error {
	return a.send(protocol.TypePlayerUpdated, p)
}

func (a *Adapter) SendObjectiveUpdate(o protocol.ObjectiveInfo) error {
	return a.send(protocol.TypeObjectiveUpdate, o)
}

func (a *Adapter) SendObjectiveCompleted(o protocol.ObjectiveInfo, playerID string) error {
	return a.send(protocol.TypeObjectiveDone, protocol.ObjectiveDoneMsg{Objective: o, PlayerID: playerID})
}
