package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/infra/memory"
)

var (
	testStart = time.Date(2024, 11, 22, 19, 0, 0, 0, time.UTC)
	hostSeq   atomic.Int64
)

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

type harness struct {
	service *app.RoomService
	clock   fakeClock
	store   *memory.RoomStore
	events  *memory.EventLog
}

func newHarness(t *testing.T, opts ...app.Option) *harness {
	t.Helper()
	h := &harness{
		clock:  clockwork.NewFakeClockAt(testStart),
		store:  memory.NewRoomStore(),
		events: memory.NewEventLog(0),
	}
	packs := memory.NewPackRepository(memory.NewStaticPackLoader(memory.SamplePack()), time.Minute)
	base := []app.Option{app.WithClock(h.clock), app.WithEventPublisher(h.events)}
	h.service = app.NewRoomService(h.store, packs, append(base, opts...)...)
	t.Cleanup(func() { h.service.Shutdown(context.Background()) })
	return h
}

// create opens a sample-pack room and returns its code with the host connection.
func (h *harness) create(t *testing.T, settings map[string]any) (string, *recorder) {
	t.Helper()
	return h.createWith(t, app.CreateRequest{PackID: memory.SamplePackID, Settings: settings})
}

func (h *harness) createWith(t *testing.T, req app.CreateRequest) (string, *recorder) {
	t.Helper()
	host := newRecorder(fmt.Sprintf("host-%d", hostSeq.Add(1)))
	res, err := h.service.Create(context.Background(), host, req)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return res.RoomID, host
}

func (h *harness) join(t *testing.T, roomID, playerID, name string) *recorder {
	t.Helper()
	conn := newRecorder("conn-" + playerID)
	err := h.service.Join(context.Background(), conn, app.JoinRequest{
		RoomID:      roomID,
		Role:        domain.RolePlayer,
		PlayerID:    playerID,
		DisplayName: name,
	})
	if err != nil {
		t.Fatalf("join %s: %v", playerID, err)
	}
	return conn
}

func (h *harness) next(t *testing.T, roomID string, host *recorder) {
	t.Helper()
	if err := h.service.Next(context.Background(), host.ID(), roomID); err != nil {
		t.Fatalf("next: %v", err)
	}
}

// openQuestion drives a fresh room to ACTIVE_ROUND on question index idx.
func (h *harness) openQuestion(t *testing.T, roomID string, host *recorder, idx int) {
	t.Helper()
	h.next(t, roomID, host) // READY_CHECK
	h.next(t, roomID, host) // ACTIVE_ROUND q1
	for i := 0; i < idx; i++ {
		h.next(t, roomID, host) // REVEAL
		h.next(t, roomID, host) // ACTIVE_ROUND
	}
}

func (h *harness) submit(roomID string, conn *recorder, questionID string, payload domain.ResponsePayload) error {
	return h.service.SubmitResponse(context.Background(), conn.ID(), app.SubmitRequest{
		RoomID:     roomID,
		QuestionID: questionID,
		Payload:    payload,
	})
}

func (h *harness) session(t *testing.T, roomID string) *app.Session {
	t.Helper()
	session, err := h.service.Session(roomID)
	if err != nil {
		t.Fatalf("session %s: %v", roomID, err)
	}
	return session
}

func (h *harness) player(t *testing.T, roomID, playerID string) domain.Player {
	t.Helper()
	p, ok := h.session(t, roomID).Player(playerID)
	if !ok {
		t.Fatalf("player %s not found", playerID)
	}
	return p
}

func (h *harness) eventTypes() []string {
	var out []string
	for _, ev := range h.events.Events() {
		out = append(out, ev.Type)
	}
	return out
}

func option(id string) domain.ResponsePayload {
	return domain.ResponsePayload{OptionID: id}
}

func text(s string) domain.ResponsePayload {
	return domain.ResponsePayload{Text: s}
}

func requireErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// recorder is an in-memory subscriber that keeps every delivered event.
type recorder struct {
	id string

	mu     sync.Mutex
	events []app.Event
	refuse bool
	closed bool
}

func newRecorder(id string) *recorder {
	return &recorder{id: id}
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Deliver(ev app.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refuse || r.closed {
		return false
	}
	r.events = append(r.events, ev)
	return true
}

func (r *recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *recorder) setRefuse(v bool) {
	r.mu.Lock()
	r.refuse = v
	r.mu.Unlock()
}

func (r *recorder) first() app.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return app.Event{}
	}
	return r.events[0]
}

// last returns the most recent snapshot delivered to the connection.
func (r *recorder) last(t *testing.T) domain.Snapshot {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if snap, ok := r.events[i].Payload.(domain.Snapshot); ok && r.events[i].Type == app.EventSnapshot {
			return snap
		}
	}
	t.Fatalf("connection %s received no snapshot", r.id)
	return domain.Snapshot{}
}

func (r *recorder) snapshots() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == app.EventSnapshot {
			n++
		}
	}
	return n
}

type memorySnapshots struct {
	mu    sync.Mutex
	saved map[string]domain.Snapshot
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{saved: make(map[string]domain.Snapshot)}
}

func (m *memorySnapshots) Save(_ context.Context, snap domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[snap.Room.RoomID] = snap
	return nil
}

func (m *memorySnapshots) Load(_ context.Context, roomID string) (domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.saved[roomID]
	if !ok {
		return domain.Snapshot{}, domain.ErrRoomNotFound
	}
	return snap, nil
}

type resultArchive struct {
	mu      sync.Mutex
	results []domain.RoomResult
}

func (a *resultArchive) Archive(_ context.Context, result domain.RoomResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, result)
	return nil
}

func (a *resultArchive) all() []domain.RoomResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.RoomResult(nil), a.results...)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, domain.RoomEvent) error {
	return errors.New("broker unavailable")
}
