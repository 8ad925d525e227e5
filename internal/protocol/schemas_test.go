package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"groundcrew/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	envelopeSchema := compile("envelope.schema.json")
	editSchema := compile("terrain-edit.schema.json")
	sessionSchema := compile("session.schema.json")
	chatSchema := compile("chat.schema.json")

	var envelope any
	_ = json.Unmarshal([]byte(`{
	  "type":"terrain-modify",
	  "protocol_version":"1.0",
	  "sender":"c1",
	  "session_id":"s1",
	  "payload":{"player_id":"c1","x":3,"y":4,"height_delta":-1.5,"tool":"excavator","at_unix_ms":1700000000000}
	}`), &envelope)
	validate(envelopeSchema, envelope)

	var edit any
	_ = json.Unmarshal([]byte(`{
	  "player_id":"c1",
	  "x":3,
	  "y":4,
	  "height_delta":-1.5,
	  "tool":"excavator",
	  "at_unix_ms":1700000000000,
	  "session_id":"s1"
	}`), &edit)
	validate(editSchema, edit)

	var sess any
	_ = json.Unmarshal([]byte(`{
	  "session_id":"s1",
	  "name":"north ridge",
	  "host_id":"c1",
	  "max_players":4,
	  "is_public":true,
	  "state":"active",
	  "settings":{"allow_spectators":false,"chat_enabled":true,"conflict_policy":"lastWins","pause_on_disconnect":true},
	  "players":[
	    {"player_id":"c1","name":"ana","role":"host","status":"active","joined_at_unix_ms":1700000000000,
	     "cursor":{"x":0,"y":0,"visible":true,"tool":"bulldozer"}},
	    {"player_id":"c2","name":"ben","role":"participant","status":"idle","joined_at_unix_ms":1700000001000,
	     "cursor":{"x":5,"y":7,"visible":false}}
	  ]
	}`), &sess)
	validate(sessionSchema, sess)

	var chat any
	_ = json.Unmarshal([]byte(`{
	  "player_id":"c2",
	  "player_name":"ben",
	  "text":"flattening the ridge",
	  "at_unix_ms":1700000002000
	}`), &chat)
	validate(chatSchema, chat)
}

// Encode output must itself satisfy the envelope schema.
func TestEncode_MatchesEnvelopeSchema(t *testing.T) {
	p := filepath.Join("..", "..", "schemas", "envelope.schema.json")
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	b, err := protocol.Encode(protocol.TypeChatMessage, "c1", "s1", protocol.ChatMsg{
		PlayerID: "c1",
		Text:     "hi",
		AtUnixMs: 1700000000000,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Validate(v); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
