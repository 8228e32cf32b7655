package websocket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/bastago/basta/internal/auth"
	"github.com/bastago/basta/internal/logger"
	"github.com/bastago/basta/internal/models"
	"github.com/bastago/basta/internal/services"
	"github.com/bastago/basta/internal/testutil"
	"github.com/bastago/basta/internal/websocket"
	"github.com/bastago/basta/pkg/wordjudge"
)

type wsFixture struct {
	srv   *httptest.Server
	hub   *websocket.Hub
	auth  *auth.Auth
	rooms *services.RoomService
}

func newWsFixture(t *testing.T) *wsFixture {
	t.Helper()
	repo := testutil.NewTestRepository(t)
	log := logger.New()
	cfg := services.DefaultConfig()

	tokenAuth := auth.New("test-secret")
	hub := websocket.New(log, tokenAuth)
	timers := services.NewTimerScheduler(log)
	validator := services.NewValidationService(log, wordjudge.NewMockClient(wordjudge.WithDefaultValid()))
	phase := services.NewPhaseService(log, repo, timers, validator, hub, cfg)
	rooms := services.NewRoomService(log, repo, phase, timers, hub, cfg)
	sessions := services.NewSessionService(log, repo, phase, hub, cfg)
	matching := services.NewMatchmakingService(log, rooms, hub, cfg)
	hub.Bind(sessions, rooms, matching)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	t.Cleanup(srv.Close)
	return &wsFixture{srv: srv, hub: hub, auth: tokenAuth, rooms: rooms}
}

// dial opens a websocket connection authenticated as the given player
func (f *wsFixture) dial(t *testing.T, playerID, username string) *gws.Conn {
	t.Helper()
	token, err := f.auth.Generate(playerID, username)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "?token=" + token
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wsEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil reads frames until one with the wanted type arrives
func readUntil(t *testing.T, conn *gws.Conn, wantType string) wsEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg wsEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("never received %q: %v", wantType, err)
		}
		if msg.Type == wantType {
			return msg
		}
	}
}

// TestServeWs_RejectsMissingToken tests handshake authentication
func TestServeWs_RejectsMissingToken(t *testing.T) {
	f := newWsFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	_, resp, err := gws.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected the handshake to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %+v", resp)
	}
}

// TestPublish_DeliversToPlayerChannel tests the automatic per-player
// subscription
func TestPublish_DeliversToPlayerChannel(t *testing.T) {
	f := newWsFixture(t)
	conn := f.dial(t, "p1", "alice")

	// Connecting races the hub's registration; retry until subscribed
	go func() {
		for i := 0; i < 20; i++ {
			f.hub.Publish(services.PlayerChannel("p1"), "hello", map[string]string{"n": "1"})
			time.Sleep(25 * time.Millisecond)
		}
	}()

	msg := readUntil(t, conn, "hello")
	var payload map[string]string
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload["n"] != "1" {
		t.Errorf("unexpected payload: %v", payload)
	}
}

// TestJoinRoom_SubscribesToRoomBroadcasts tests the join-room action and
// subsequent room-channel delivery
func TestJoinRoom_SubscribesToRoomBroadcasts(t *testing.T) {
	f := newWsFixture(t)

	room, err := f.rooms.CreateRoom(context.Background(), services.CreateRoomParams{
		OwnerID:       "owner",
		OwnerUsername: "owner",
		Capacity:      4,
	})
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	conn := f.dial(t, "p1", "alice")
	join, _ := json.Marshal(map[string]string{"room_id": room.ID})
	if err := conn.WriteJSON(wsEnvelope{Type: "join-room", Payload: join}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reply := readUntil(t, conn, "room-joined")
	var joined models.Room
	if err := json.Unmarshal(reply.Payload, &joined); err != nil {
		t.Fatalf("failed to decode room: %v", err)
	}
	if joined.Member("p1") == nil {
		t.Error("expected the caller seated in the reply")
	}

	// A third player joining is broadcast on the room channel
	if _, err := f.rooms.JoinRoom(context.Background(), room.ID, "p2", "bob", ""); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	ev := readUntil(t, conn, services.EventPlayerJoined)
	var p services.PlayerJoinedPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if p.PlayerID != "p2" {
		t.Errorf("expected p2's join broadcast, got %+v", p)
	}
}

// TestHandle_ErrorsGoBackToSender tests the per-client error reply
func TestHandle_ErrorsGoBackToSender(t *testing.T) {
	f := newWsFixture(t)
	conn := f.dial(t, "p1", "alice")

	join, _ := json.Marshal(map[string]string{"room_id": "no-such-room"})
	if err := conn.WriteJSON(wsEnvelope{Type: "join-room", Payload: join}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reply := readUntil(t, conn, "error")
	var body struct {
		Action string `json:"action"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(reply.Payload, &body); err != nil {
		t.Fatalf("failed to decode error reply: %v", err)
	}
	if body.Action != "join-room" || body.Error == "" {
		t.Errorf("unexpected error reply: %+v", body)
	}
}

// TestQuickplay_ReplyOverSocket tests the quickplay action reply
func TestQuickplay_ReplyOverSocket(t *testing.T) {
	f := newWsFixture(t)
	conn := f.dial(t, "p1", "alice")

	payload, _ := json.Marshal(map[string]string{"language": "en"})
	if err := conn.WriteJSON(wsEnvelope{Type: "quickplay", Payload: payload}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reply := readUntil(t, conn, "quickplay-result")
	var res services.QuickplayResult
	if err := json.Unmarshal(reply.Payload, &res); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if !res.Queued {
		t.Errorf("expected the lone player queued, got %+v", res)
	}
}
