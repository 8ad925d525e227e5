package session

import "time"

type ChatMessage struct {
	PlayerID   string
	PlayerName string
	Text       string
	At         time.Time
}

// AddChat appends to the bounded history. Returns false when chat is disabled
// for the session.
func (s *Session) AddChat(m ChatMessage) bool {
	if !s.Settings.ChatEnabled || s.Terminal() {
		return false
	}
	s.chat = append(s.chat, m)
	if len(s.chat) > s.chatMax {
		s.chat = s.chat[len(s.chat)-s.chatMax:]
	}
	return true
}

// Chat returns up to n most recent messages, oldest first.
func (s *Session) Chat(n int) []ChatMessage {
	if n <= 0 || n > len(s.chat) {
		n = len(s.chat)
	}
	out := make([]ChatMessage, n)
	copy(out, s.chat[len(s.chat)-n:])
	return out
}
