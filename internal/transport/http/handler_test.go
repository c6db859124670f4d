package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	packs := memory.NewPackRepository(memory.NewStaticPackLoader(memory.SamplePack()), time.Minute)
	service := app.NewRoomService(memory.NewRoomStore(), packs)
	handler := NewHandler(service, DefaultConnectionConfig())

	mux := http.NewServeMux()
	handler.Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func send(t *testing.T, conn *websocket.Conn, id, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ, "payload": payload}
	if id != "" {
		msg["id"] = id
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readNext(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	var msg envelope
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg
}

// readSnapshot skips messages until a snapshot satisfying match arrives.
func readSnapshot(t *testing.T, conn *websocket.Conn, match func(domain.Snapshot) bool) domain.Snapshot {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := readNext(t, conn)
		if msg.Type == "room.error" {
			t.Fatalf("unexpected error %s", msg.Payload)
		}
		if msg.Type != "room.snapshot" {
			continue
		}
		var snap domain.Snapshot
		if err := json.Unmarshal(msg.Payload, &snap); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		if match(snap) {
			return snap
		}
	}
	t.Fatalf("no matching snapshot received")
	return domain.Snapshot{}
}

func inState(state domain.RoomState) func(domain.Snapshot) bool {
	return func(s domain.Snapshot) bool { return s.Room.State == state }
}

func TestWebSocketRoomFlow(t *testing.T) {
	server := newTestServer(t)
	host := dial(t, server)
	player := dial(t, server)

	send(t, host, "", "room.create", map[string]any{"packId": memory.SamplePackID})
	created := readNext(t, host)
	if created.Type != "room.created" {
		t.Fatalf("expected room.created first, got %s", created.Type)
	}
	var res struct {
		RoomID    string `json:"roomId"`
		HostToken string `json:"hostToken"`
	}
	if err := json.Unmarshal(created.Payload, &res); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if len(res.RoomID) != 6 || res.HostToken == "" {
		t.Fatalf("unexpected create result %+v", res)
	}
	hostSnap := readSnapshot(t, host, inState(domain.StateWaitingRoom))
	if hostSnap.Role != domain.RoleHost {
		t.Fatalf("expected host snapshot, got role %s", hostSnap.Role)
	}

	send(t, player, "", "room.join", map[string]any{
		"roomId": res.RoomID, "role": "player", "playerId": "p1", "displayName": "Alice",
	})
	joined := readSnapshot(t, player, inState(domain.StateWaitingRoom))
	if len(joined.Players) != 1 || joined.Players[0].DisplayName != "Alice" {
		t.Fatalf("expected Alice in roster, got %+v", joined.Players)
	}
	if joined.CurrentQuestion != nil {
		t.Fatalf("expected no question before the round starts")
	}

	send(t, host, "", "room.next", map[string]any{"roomId": res.RoomID})
	send(t, host, "", "room.next", map[string]any{"roomId": res.RoomID})
	active := readSnapshot(t, player, inState(domain.StateActiveRound))
	if active.CurrentQuestion == nil || active.CurrentQuestion.ID != "q1" {
		t.Fatalf("expected q1 active, got %+v", active.CurrentQuestion)
	}
	if active.CurrentQuestion.Answer != nil {
		t.Fatalf("answer must not reach players before reveal")
	}

	send(t, player, "", "room.submitResponse", map[string]any{
		"roomId": res.RoomID, "questionId": "q1", "playerId": "p1",
		"payload": map[string]any{"optionId": "b"},
	})
	readSnapshot(t, player, func(s domain.Snapshot) bool { return s.You != nil && s.You.Submitted })

	send(t, host, "", "room.next", map[string]any{"roomId": res.RoomID})
	revealed := readSnapshot(t, player, inState(domain.StateReveal))
	if revealed.You == nil || revealed.You.IsCorrect == nil || !*revealed.You.IsCorrect {
		t.Fatalf("expected own correct result after reveal, got %+v", revealed.You)
	}
	if revealed.CurrentQuestion.Answer == nil {
		t.Fatalf("expected answer key after reveal")
	}
	if revealed.Players[0].Score <= 0 {
		t.Fatalf("expected positive score, got %d", revealed.Players[0].Score)
	}
}

func TestWebSocketErrorsGoToIssuer(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server)

	send(t, conn, "req-1", "room.dance", map[string]any{})
	msg := readNext(t, conn)
	if msg.Type != "room.error" {
		t.Fatalf("expected room.error, got %s", msg.Type)
	}
	var payload errorPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if payload.Code != domain.KindValidation || payload.RequestID != "req-1" || payload.Command != "room.dance" {
		t.Fatalf("unexpected error payload %+v", payload)
	}

	send(t, conn, "req-2", "room.join", map[string]any{"roomId": "NOPE99", "role": "display"})
	msg = readNext(t, conn)
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if payload.Code != domain.KindNotFound || payload.RequestID != "req-2" {
		t.Fatalf("expected not_found for req-2, got %+v", payload)
	}

	send(t, conn, "req-3", "room.submitResponse", map[string]any{"roomId": 42})
	msg = readNext(t, conn)
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if payload.Code != domain.KindValidation {
		t.Fatalf("expected validation error for malformed payload, got %+v", payload)
	}
}

func TestWebSocketHostCommandsNeedHost(t *testing.T) {
	server := newTestServer(t)
	host := dial(t, server)
	intruder := dial(t, server)

	send(t, host, "", "room.create", map[string]any{"packId": memory.SamplePackID})
	var res struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(readNext(t, host).Payload, &res); err != nil {
		t.Fatalf("decode created: %v", err)
	}

	send(t, intruder, "", "room.join", map[string]any{"roomId": res.RoomID, "role": "host", "hostToken": "guess"})
	msg := readNext(t, intruder)
	var payload errorPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "room.error" || payload.Code != domain.KindUnauthorized {
		t.Fatalf("expected unauthorized join, got %s %+v", msg.Type, payload)
	}

	send(t, intruder, "", "room.join", map[string]any{"roomId": res.RoomID, "role": "display"})
	readSnapshot(t, intruder, inState(domain.StateWaitingRoom))
	send(t, intruder, "", "room.setState", map[string]any{"roomId": res.RoomID, "nextState": "END_ROOM"})
	msg = readNext(t, intruder)
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "room.error" || payload.Code != domain.KindUnauthorized {
		t.Fatalf("expected unauthorized setState, got %s %+v", msg.Type, payload)
	}
}

func TestRoomEndpoint(t *testing.T) {
	server := newTestServer(t)
	host := dial(t, server)

	send(t, host, "", "room.create", map[string]any{"packId": memory.SamplePackID})
	var res struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(readNext(t, host).Payload, &res); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	readSnapshot(t, host, inState(domain.StateWaitingRoom))

	resp, err := http.Get(server.URL + "/rooms/" + res.RoomID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var snap domain.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Role != domain.RoleDisplay || snap.Room.RoomID != res.RoomID {
		t.Fatalf("unexpected display snapshot %+v", snap.Room)
	}

	missing, err := http.Get(server.URL + "/rooms/NOPE99")
	if err != nil {
		t.Fatalf("get missing room: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}

	health, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", health.StatusCode)
	}
}
