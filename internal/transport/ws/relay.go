package ws

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"groundcrew/internal/journal"
	"groundcrew/internal/protocol"
	"groundcrew/internal/session"
	"groundcrew/internal/tuning"
)

// Relay is the reliable ordered channel behind every session: it owns the
// authoritative membership record, assigns client identities, and mirrors all
// session traffic to every member including the sender. Clients rely on that
// mirroring for echo suppression, so the relay always overwrites the sender
// tag with the identity it assigned at handshake.
type Relay struct {
	log *log.Logger
	tun tuning.Tuning
	jnl *journal.Journal

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*relaySession
}

type relaySession struct {
	sess    *session.Session
	members map[string]*member
}

type member struct {
	id   string
	name string
	out  chan []byte

	// Guarded by Relay.mu: a kick clears it from another member's goroutine.
	sessionID string
}

func NewRelay(tun tuning.Tuning, logger *log.Logger) *Relay {
	return &Relay{
		log: logger,
		tun: tun,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		sessions: make(map[string]*relaySession),
	}
}

// SetJournal attaches an audit journal. Optional; a nil journal means no
// audit trail. Must be called before the relay starts serving.
func (s *Relay) SetJournal(j *journal.Journal) { s.jnl = j }

func (s *Relay) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		m := s.handshake(conn)
		if m == nil {
			return
		}

		done := make(chan struct{})

		writeTimeout := time.Duration(s.tun.Relay.WriteTimeoutSec) * time.Second
		if writeTimeout <= 0 {
			writeTimeout = 5 * time.Second
		}

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-done:
					return
				case b, ok := <-m.out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						return
					}
				}
			}
		}()

		// Reader loop.
		readTimeout := time.Duration(s.tun.Relay.ReadTimeoutSec) * time.Second
		if readTimeout <= 0 {
			readTimeout = 60 * time.Second
		}
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.dispatch(m, msg)
		}
		close(done)

		// Cleanup: a dropped connection is a leave.
		s.leave(m)
	}
}

func (s *Relay) handshake(conn *websocket.Conn) *member {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected hello"), time.Now().Add(time.Second))
		return nil
	}
	if base.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}

	var env protocol.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(env.Payload, &hello); err != nil {
		return nil
	}
	if hello.PlayerName == "" {
		hello.PlayerName = "player"
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 32
	}
	if limit := s.tun.Relay.MaxQueue; limit > 0 && maxQ > limit {
		maxQ = limit
	}

	m := &member{
		id:   session.NewID(),
		name: hello.PlayerName,
		out:  make(chan []byte, maxQ),
	}

	b, err := protocol.Encode(protocol.TypeWelcome, "", "", protocol.WelcomeMsg{ClientID: m.id})
	if err != nil {
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return nil
	}
	return m
}

// dispatch routes one inbound message. Session lifecycle requests are handled
// by the relay itself; everything else is mirrored verbatim to the member's
// session, with the sender tag re-stamped.
func (s *Relay) dispatch(m *member, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return
	}
	if base.ProtocolVersion != "" && base.ProtocolVersion != protocol.Version {
		s.sendErr(m, protocol.ErrProtoBadRequest, "unsupported protocol_version "+base.ProtocolVersion)
		return
	}

	switch base.Type {
	case protocol.TypeCreateSession:
		s.create(m, msg)
	case protocol.TypeJoinSession:
		s.join(m, msg)
	case protocol.TypeLeaveSession:
		s.leave(m)
	case protocol.TypePlayerLeft:
		s.applyPlayerLeft(m, msg)
	case protocol.TypePlayerUpdated:
		s.applyPlayerUpdated(m, msg)
	case protocol.TypeSettingsUpdate:
		s.applySettings(m, msg)
	default:
		s.mirror(m, msg)
	}
}

// sessionOf reads the member's session id under the registry lock.
func (s *Relay) sessionOf(m *member) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.sessionID
}

func (s *Relay) create(m *member, msg []byte) {
	if s.sessionOf(m) != "" {
		s.sendErr(m, protocol.ErrBadRequest, "already in a session")
		return
	}
	var req protocol.CreateSessionMsg
	if !s.payload(m, msg, &req) {
		return
	}
	if req.MaxPlayers <= 0 {
		s.sendErr(m, protocol.ErrBadRequest, "max_players must be positive")
		return
	}

	sess, err := session.New(session.Config{
		Name:       req.Name,
		MaxPlayers: req.MaxPlayers,
		Public:     req.IsPublic,
		Settings:   session.SettingsFromInfo(req.Settings),
		HostID:     m.id,
		HostName:   m.name,
		ChatMax:    s.tun.ChatHistoryMax,
		Now:        time.Now(),
	})
	if err != nil {
		s.sendErr(m, protocol.ErrBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	rs := &relaySession{sess: sess, members: map[string]*member{m.id: m}}
	s.sessions[sess.ID] = rs
	m.sessionID = sess.ID
	s.mu.Unlock()

	s.log.Printf("session %s created by %s (%s)", sess.ID, m.name, m.id)
	s.sendTo(m, protocol.TypeSessionCreated, sess.ID, sess.ToInfo())
}

func (s *Relay) join(m *member, msg []byte) {
	if s.sessionOf(m) != "" {
		s.sendErr(m, protocol.ErrBadRequest, "already in a session")
		return
	}
	var req protocol.JoinSessionMsg
	if !s.payload(m, msg, &req) {
		return
	}
	name := req.PlayerName
	if name == "" {
		name = m.name
	}

	s.mu.Lock()
	rs, ok := s.sessions[req.SessionID]
	if !ok {
		s.mu.Unlock()
		s.sendErr(m, protocol.ErrSessionUnknown, "no session "+req.SessionID)
		return
	}
	if rs.sess.Terminal() {
		s.mu.Unlock()
		s.sendErr(m, protocol.ErrSessionTerminal, "session has ended")
		return
	}
	p := session.NewPlayer(m.id, name, session.RoleParticipant, time.Now())
	if err := rs.sess.ApplyPlayerJoined(*p); err != nil {
		s.mu.Unlock()
		if errors.Is(err, session.ErrSessionFull) {
			s.sendErr(m, protocol.ErrSessionFull, "session is full")
		} else {
			s.sendErr(m, protocol.ErrBadRequest, err.Error())
		}
		return
	}
	rs.members[m.id] = m
	m.sessionID = rs.sess.ID
	info := rs.sess.ToInfo()
	s.mu.Unlock()

	s.log.Printf("session %s: %s (%s) joined", info.SessionID, name, m.id)
	s.sendTo(m, protocol.TypeSessionJoined, info.SessionID, info)
	s.broadcast(info.SessionID, m.id, protocol.TypePlayerJoined, session.PlayerToInfo(*p))
}

// leave removes the member from its session and tells everyone. Safe to call
// twice; the second call is a no-op.
func (s *Relay) leave(m *member) {
	s.mu.Lock()
	rs, ok := s.sessions[m.sessionID]
	if !ok {
		m.sessionID = ""
		s.mu.Unlock()
		return
	}
	sessionID := m.sessionID
	m.sessionID = ""
	delete(rs.members, m.id)
	left, had := rs.sess.ApplyPlayerLeft(m.id)
	empty := rs.sess.PlayerCount() == 0
	var finalState session.State
	if empty {
		if !rs.sess.Terminal() {
			_ = rs.sess.Cancel(time.Now())
		}
		finalState = rs.sess.State()
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if empty && s.jnl != nil {
		s.jnl.RecordSessionEnd(sessionID, string(finalState), time.Now())
	}

	if !had {
		return
	}
	s.log.Printf("session %s: %s (%s) left", sessionID, left.Name, left.ID)
	s.broadcast(sessionID, m.id, protocol.TypePlayerLeft, session.PlayerToInfo(left))
}

// applyPlayerLeft handles a kick: the named player is removed from the
// authoritative roster before the message is mirrored.
func (s *Relay) applyPlayerLeft(m *member, msg []byte) {
	var p protocol.PlayerInfo
	if !s.payload(m, msg, &p) {
		return
	}

	s.mu.Lock()
	sid := m.sessionID
	rs, ok := s.sessions[sid]
	if !ok {
		s.mu.Unlock()
		s.sendErr(m, protocol.ErrNoSession, "not in a session")
		return
	}
	caller, found := rs.sess.FindPlayer(m.id)
	if !found || (!caller.Perms.Kick && p.PlayerID != m.id) {
		s.mu.Unlock()
		s.sendTo(m, protocol.TypePermissionDenied, sid, protocol.PermissionDeniedMsg{Action: "kick", Reason: "kick requires host privileges"})
		return
	}
	target, had := rs.sess.ApplyPlayerLeft(p.PlayerID)
	var victim *member
	if had {
		if km, present := rs.members[p.PlayerID]; present {
			delete(rs.members, p.PlayerID)
			km.sessionID = ""
			victim = km
		}
	}
	s.mu.Unlock()

	if had {
		s.broadcast(sid, m.id, protocol.TypePlayerLeft, session.PlayerToInfo(target))
		if victim != nil {
			// The victim is out of the member set already; tell it directly.
			s.sendTo(victim, protocol.TypePlayerLeft, sid, session.PlayerToInfo(target))
		}
	}
}

func (s *Relay) applyPlayerUpdated(m *member, msg []byte) {
	var p protocol.PlayerInfo
	if !s.payload(m, msg, &p) {
		return
	}

	s.mu.Lock()
	sid := m.sessionID
	rs, ok := s.sessions[sid]
	if ok {
		// Role changes replicate through this message, so they need the same
		// privilege the direct SetRole path demands of the caller.
		if target, found := rs.sess.FindPlayer(p.PlayerID); found && p.Role != "" && p.Role != string(target.Role) {
			if caller, cok := rs.sess.FindPlayer(m.id); !cok || !caller.Perms.ManageSession {
				s.mu.Unlock()
				s.sendTo(m, protocol.TypePermissionDenied, sid, protocol.PermissionDeniedMsg{Action: "role-change", Reason: "role changes require host privileges"})
				return
			}
		}
		_ = rs.sess.ApplyPlayerUpdated(session.PlayerFromInfo(p))
	}
	s.mu.Unlock()
	if !ok {
		s.sendErr(m, protocol.ErrNoSession, "not in a session")
		return
	}
	s.mirror(m, msg)
}

func (s *Relay) applySettings(m *member, msg []byte) {
	var info protocol.SettingsInfo
	if !s.payload(m, msg, &info) {
		return
	}

	s.mu.Lock()
	sid := m.sessionID
	rs, ok := s.sessions[sid]
	if ok {
		if caller, found := rs.sess.FindPlayer(m.id); !found || !caller.Perms.ManageSession {
			s.mu.Unlock()
			s.sendTo(m, protocol.TypePermissionDenied, sid, protocol.PermissionDeniedMsg{Action: "settings-update", Reason: "settings require host privileges"})
			return
		}
		rs.sess.Settings = session.SettingsFromInfo(info)
	}
	s.mu.Unlock()
	if !ok {
		s.sendErr(m, protocol.ErrNoSession, "not in a session")
		return
	}
	s.mirror(m, msg)
}

// mirror re-stamps the sender tag and fans the message out to every session
// member, the sender included.
func (s *Relay) mirror(m *member, msg []byte) {
	sid := s.sessionOf(m)
	if sid == "" {
		s.sendErr(m, protocol.ErrNoSession, "not in a session")
		return
	}
	var env protocol.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		s.sendErr(m, protocol.ErrProtoBadRequest, "undecodable message")
		return
	}
	env.Sender = m.id
	env.SessionID = sid
	b, err := json.Marshal(env)
	if err != nil {
		return
	}

	if s.jnl != nil {
		switch env.Type {
		case protocol.TypeTerrainModify, protocol.TypeTerrainModified:
			var edit protocol.TerrainEdit
			if json.Unmarshal(env.Payload, &edit) == nil {
				edit.SessionID = sid
				s.jnl.RecordEdit(edit)
			}
		case protocol.TypeChatMessage:
			var chat protocol.ChatMsg
			if json.Unmarshal(env.Payload, &chat) == nil {
				s.jnl.RecordChat(sid, m.id, chat.Text, time.Now())
			}
		}
	}

	s.mu.Lock()
	rs, ok := s.sessions[sid]
	var outs []chan []byte
	if ok {
		for _, mm := range rs.members {
			outs = append(outs, mm.out)
		}
	}
	s.mu.Unlock()

	for _, out := range outs {
		select {
		case out <- b:
		default:
			// Slow consumer; the channel contract is ordered, not infinite.
		}
	}
}

func (s *Relay) broadcast(sessionID, sender, typ string, payload any) {
	b, err := protocol.Encode(typ, sender, sessionID, payload)
	if err != nil {
		return
	}

	s.mu.Lock()
	rs, ok := s.sessions[sessionID]
	var outs []chan []byte
	if ok {
		for _, mm := range rs.members {
			outs = append(outs, mm.out)
		}
	}
	s.mu.Unlock()

	for _, out := range outs {
		select {
		case out <- b:
		default:
		}
	}
}

func (s *Relay) sendTo(m *member, typ, sessionID string, payload any) {
	b, err := protocol.Encode(typ, "", sessionID, payload)
	if err != nil {
		return
	}
	select {
	case m.out <- b:
	default:
	}
}

func (s *Relay) sendErr(m *member, code, message string) {
	s.sendTo(m, protocol.TypeError, s.sessionOf(m), protocol.ErrorMsg{Message: message, Code: code})
}

func (s *Relay) payload(m *member, msg []byte, v any) bool {
	var env protocol.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		s.sendErr(m, protocol.ErrProtoBadRequest, "undecodable message")
		return false
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		s.sendErr(m, protocol.ErrProtoBadRequest, "bad "+env.Type+" payload")
		return false
	}
	return true
}

// SessionCount is for health endpoints and tests.
func (s *Relay) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
