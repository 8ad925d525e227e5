package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"groundcrew/internal/channel"
	"groundcrew/internal/protocol"
	"groundcrew/internal/transport/ws"
)

// A scripted player: connects, creates or joins a session, then wanders the
// grid cutting and filling. Useful for exercising a relay by hand.
func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "relay ws url")
		name   = flag.String("name", "bot", "player name")
		joinID = flag.String("join", "", "session id to join (empty: create a new session)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	client, err := ws.Dial(ctx, *url)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer client.Close()

	adapter := channel.NewAdapter(client, logger, 256)

	raw := make(chan []byte, 256)
	go func() {
		defer close(raw)
		_ = client.ReadLoop(ctx, func(b []byte) {
			select {
			case raw <- b:
			case <-ctx.Done():
			}
		})
	}()

	if err := adapter.SendHello(*name, 64); err != nil {
		logger.Fatalf("send hello: %v", err)
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	edits := time.NewTicker(500 * time.Millisecond)
	defer edits.Stop()

	inSession := false

	for {
		select {
		case <-ctx.Done():
			return

		case b, ok := <-raw:
			if !ok {
				return
			}
			adapter.HandleRaw(b)
			drainEvents(adapter, logger, &inSession, *joinID)

		case <-edits.C:
			if !inSession {
				continue
			}
			x, y := r.Intn(32), r.Intn(32)
			delta := float64(r.Intn(5)+1) * 0.5
			if r.Intn(2) == 0 {
				delta = -delta
			}
			tool := "excavator"
			if delta > 0 {
				tool = "bulldozer"
			}
			_ = adapter.SendTerrainEdit(protocol.TerrainEdit{
				PlayerID:    adapter.ClientID(),
				X:           x,
				Y:           y,
				HeightDelta: delta,
				Tool:        tool,
				AtUnixMs:    time.Now().UnixMilli(),
			})
			_ = adapter.SendCursor(adapter.ClientID(), protocol.CursorInfo{X: x, Y: y, Visible: true, Tool: tool})
			if r.Intn(20) == 0 {
				_ = adapter.SendChat(adapter.ClientID(), *name, fmt.Sprintf("working cell (%d,%d)", x, y), time.Now())
			}
		}
	}
}

// drainEvents consumes whatever the adapter produced for the frame just
// handled; the bot reacts only to connection and membership transitions.
func drainEvents(adapter *channel.Adapter, logger *log.Logger, inSession *bool, joinID string) {
	for {
		select {
		case ev := <-adapter.Events():
			switch e := ev.(type) {
			case channel.Connected:
				logger.Printf("connected client_id=%s", e.ClientID)
				if joinID != "" {
					_ = adapter.SendJoinSession(protocol.JoinSessionMsg{SessionID: joinID})
				} else {
					_ = adapter.SendCreateSession(protocol.CreateSessionMsg{
						Name:       "bot session",
						MaxPlayers: 8,
						IsPublic:   true,
						Settings:   protocol.SettingsInfo{ChatEnabled: true, ConflictPolicy: "lastWins"},
					})
				}
			case channel.SessionCreated:
				logger.Printf("session created id=%s (join with -join %s)", e.Session.SessionID, e.Session.SessionID)
				*inSession = true
			case channel.SessionJoined:
				logger.Printf("joined session id=%s players=%d", e.Session.SessionID, len(e.Session.Players))
				*inSession = true
			case channel.PlayerJoined:
				logger.Printf("player joined: %s (%s)", e.Player.Name, e.Player.PlayerID)
			case channel.PlayerLeft:
				logger.Printf("player left: %s", e.PlayerID)
			case channel.ChatReceived:
				logger.Printf("chat %s: %s", e.Message.PlayerName, e.Message.Text)
			case channel.ErrorReceived:
				logger.Printf("relay error [%s]: %s", e.Code, e.Message)
			case channel.Disconnected:
				logger.Printf("disconnected")
				*inSession = false
			}
		default:
			return
		}
	}
}
