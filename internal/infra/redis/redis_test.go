package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/infra/memory"
)

func TestPackRepositoryCachesInRedis(t *testing.T) {
	mr := newMiniredis(t)
	client := newClient(mr)

	loader := &countingLoader{PackLoader: memory.NewStaticPackLoader(memory.SamplePack())}
	repo := NewPackRepository(client, loader, time.Minute)

	pack, err := repo.GetPack(context.Background(), memory.SamplePackID)
	if err != nil {
		t.Fatalf("get pack: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls.Load())
	}
	if !mr.Exists("trivia:pack:" + memory.SamplePackID) {
		t.Fatalf("expected pack cached in redis")
	}

	// Second call should hit cache, loader not incremented.
	cached, err := repo.GetPack(context.Background(), memory.SamplePackID)
	if err != nil {
		t.Fatalf("get cached pack: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls.Load())
	}
	if len(cached.Questions) != len(pack.Questions) {
		t.Fatalf("expected %d questions from cache, got %d", len(pack.Questions), len(cached.Questions))
	}
	text, ok := cached.Questions[2].Answer.(domain.TextAnswer)
	if !ok || text.Primary != "Canberra" || text.GradingMode != domain.GradingFlexible {
		t.Fatalf("expected short answer restored from cache, got %#v", cached.Questions[2].Answer)
	}
	if _, ok := cached.Questions[4].Answer.(domain.ListAnswer); !ok {
		t.Fatalf("expected list answer restored from cache, got %#v", cached.Questions[4].Answer)
	}
}

func TestPackRepositoryPropagatesLoaderErrors(t *testing.T) {
	mr := newMiniredis(t)
	repo := NewPackRepository(newClient(mr), memory.NewStaticPackLoader(), time.Minute)

	if _, err := repo.GetPack(context.Background(), "missing"); !errors.Is(err, domain.ErrPackNotFound) {
		t.Fatalf("expected pack not found, got %v", err)
	}
	if mr.Exists("trivia:pack:missing") {
		t.Fatalf("expected misses not to be cached")
	}
}

func TestRoomStoreReservesAcrossInstances(t *testing.T) {
	mr := newMiniredis(t)
	client := newClient(mr)
	ctx := context.Background()

	first := NewRoomStore(client, "instance-a", time.Hour)
	second := NewRoomStore(client, "instance-b", time.Hour)

	ok, err := first.Reserve(ctx, "ROOM42", nil)
	if err != nil || !ok {
		t.Fatalf("expected first reservation, ok=%v err=%v", ok, err)
	}
	ok, err = second.Reserve(ctx, "ROOM42", nil)
	if err != nil || ok {
		t.Fatalf("expected collision on second instance, ok=%v err=%v", ok, err)
	}
	if got, _ := mr.Get("trivia:room:ROOM42"); got != "instance-a" {
		t.Fatalf("expected reservation owned by instance-a, got %q", got)
	}

	if err := first.Delete(ctx, "ROOM42"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("trivia:room:ROOM42") {
		t.Fatalf("expected reservation released")
	}
	ok, err = second.Reserve(ctx, "ROOM42", nil)
	if err != nil || !ok {
		t.Fatalf("expected code reusable after release, ok=%v err=%v", ok, err)
	}
}

func TestRoomStoreDoesNotReleaseForeignReservation(t *testing.T) {
	mr := newMiniredis(t)
	client := newClient(mr)
	ctx := context.Background()

	store := NewRoomStore(client, "instance-a", time.Hour)
	if ok, err := store.Reserve(ctx, "ROOM42", nil); err != nil || !ok {
		t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}
	// Reservation expired and was taken over elsewhere.
	if err := mr.Set("trivia:room:ROOM42", "instance-b"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Delete(ctx, "ROOM42"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := mr.Get("trivia:room:ROOM42"); got != "instance-b" {
		t.Fatalf("expected foreign reservation kept, got %q", got)
	}
}

func TestRoomStoreBacksRoomService(t *testing.T) {
	mr := newMiniredis(t)
	store := NewRoomStore(newClient(mr), "instance-a", time.Hour)
	packs := memory.NewPackRepository(memory.NewStaticPackLoader(memory.SamplePack()), 0)
	service := app.NewRoomService(store, packs)

	res, err := service.Create(context.Background(), stubConn("c1"), app.CreateRequest{PackID: memory.SamplePackID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("trivia:room:" + res.RoomID) {
		t.Fatalf("expected room code reserved in redis")
	}
	if _, ok := store.Get(res.RoomID); !ok {
		t.Fatalf("expected live session")
	}
}

func TestSnapshotStoreKeepsNewestVersion(t *testing.T) {
	mr := newMiniredis(t)
	store := NewSnapshotStore(newClient(mr), time.Minute)
	ctx := context.Background()

	newer := sampleSnapshot(5, domain.StateReveal)
	older := sampleSnapshot(3, domain.StateActiveRound)

	if err := store.Save(ctx, newer); err != nil {
		t.Fatalf("save newer: %v", err)
	}
	if err := store.Save(ctx, older); err != nil {
		t.Fatalf("save older: %v", err)
	}

	got, err := store.Load(ctx, "ROOM42")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Version != 5 || got.Room.State != domain.StateReveal {
		t.Fatalf("expected version 5 in REVEAL, got version %d state %s", got.Version, got.Room.State)
	}
	choice, ok := got.CurrentQuestion.Answer.(domain.ChoiceAnswer)
	if !ok || choice.Correct != "b" {
		t.Fatalf("expected revealed choice answer, got %#v", got.CurrentQuestion.Answer)
	}
	if ttl := mr.TTL("trivia:snapshot:ROOM42"); ttl <= 0 {
		t.Fatalf("expected snapshot ttl, got %v", ttl)
	}
}

func TestSnapshotStoreMissingRoom(t *testing.T) {
	mr := newMiniredis(t)
	store := NewSnapshotStore(newClient(mr), time.Minute)
	if _, err := store.Load(context.Background(), "NOPE"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected room not found, got %v", err)
	}
}

func sampleSnapshot(version uint64, state domain.RoomState) domain.Snapshot {
	return domain.Snapshot{
		Version: version,
		Role:    domain.RoleDisplay,
		Room:    domain.Room{RoomID: "ROOM42", State: state},
		CurrentQuestion: &domain.QuestionView{
			ID:       "q1",
			Type:     domain.TypeMultipleChoice,
			Prompt:   "Which planet is known as the Red Planet?",
			Revealed: true,
			Answer:   domain.ChoiceAnswer{Correct: "b"},
		},
	}
}

type countingLoader struct {
	memory.PackLoader
	calls atomic.Int32
}

func (l *countingLoader) LoadPack(ctx context.Context, packID string) (domain.Pack, error) {
	l.calls.Add(1)
	return l.PackLoader.LoadPack(ctx, packID)
}

type stubConn string

func (c stubConn) ID() string             { return string(c) }
func (c stubConn) Deliver(app.Event) bool { return true }
func (c stubConn) Close()                 {}

func newMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
