package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"trivia-room-service/internal/domain"
)

const (
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeLength   = 6
	maxCodeAttempts  = 16
)

// Options tunes the engine. Zero sizes and durations fall back to
// DefaultOptions; Policy is used as given unless its floor is outside [0,1].
type Options struct {
	Policy           ScoringPolicy
	LeaderboardSize  int
	AutoAdvanceGrace time.Duration
	EndedGrace       time.Duration
	IdleTTL          time.Duration
}

// DefaultOptions returns the settings used when no config overrides them.
func DefaultOptions() Options {
	return Options{
		Policy:           DefaultScoringPolicy(),
		LeaderboardSize:  10,
		AutoAdvanceGrace: 500 * time.Millisecond,
		EndedGrace:       10 * time.Minute,
		IdleTTL:          2 * time.Hour,
	}
}

// Option configures a RoomService.
type Option func(*RoomService)

// WithOptions replaces the engine tuning.
func WithOptions(opts Options) Option {
	return func(s *RoomService) { s.opts = opts }
}

// WithClock swaps the clock; tests pass a clockwork fake clock.
func WithClock(clock clockwork.Clock) Option {
	return func(s *RoomService) { s.clock = clock }
}

// WithSnapshotStore persists the display snapshot after every change.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(s *RoomService) { s.snapshots = store }
}

// WithEventPublisher publishes room events after every change.
func WithEventPublisher(pub EventPublisher) Option {
	return func(s *RoomService) { s.publisher = pub }
}

// WithResultArchiver archives standings when a room ends.
func WithResultArchiver(archiver ResultArchiver) Option {
	return func(s *RoomService) { s.archiver = archiver }
}

// WithCodeGenerator overrides room code generation.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *RoomService) { s.newCode = gen }
}

// CreateRequest opens a room for a pack. Pack, when set, is used directly;
// otherwise PackID is loaded through the PackRepository.
type CreateRequest struct {
	PackID   string
	Pack     *domain.Pack
	Settings map[string]any
}

// CreateResult is returned to the creating host.
type CreateResult struct {
	RoomID    string `json:"roomId"`
	HostToken string `json:"hostToken"`
}

// RoomService is the room registry and the entry point for every room command.
type RoomService struct {
	rooms     RoomRepository
	packs     PackRepository
	snapshots SnapshotStore
	publisher EventPublisher
	archiver  ResultArchiver
	clock     clockwork.Clock
	opts      Options
	newCode   func() (string, error)

	mu        sync.Mutex
	connRooms map[string]string
}

func NewRoomService(rooms RoomRepository, packs PackRepository, opts ...Option) *RoomService {
	s := &RoomService{
		rooms:     rooms,
		packs:     packs,
		clock:     clockwork.NewRealClock(),
		opts:      DefaultOptions(),
		newCode:   NewRoomCode,
		connRooms: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	defaults := DefaultOptions()
	if s.opts.Policy.SpeedBonusFloor < 0 || s.opts.Policy.SpeedBonusFloor > 1 {
		s.opts.Policy.SpeedBonusFloor = defaults.Policy.SpeedBonusFloor
	}
	if s.opts.LeaderboardSize <= 0 {
		s.opts.LeaderboardSize = defaults.LeaderboardSize
	}
	if s.opts.EndedGrace <= 0 {
		s.opts.EndedGrace = defaults.EndedGrace
	}
	if s.opts.IdleTTL <= 0 {
		s.opts.IdleTTL = defaults.IdleTTL
	}
	return s
}

// NewRoomCode returns a short human-enterable room code.
func NewRoomCode() (string, error) {
	code, err := gonanoid.Generate(roomCodeAlphabet, roomCodeLength)
	if err != nil {
		return "", fmt.Errorf("generate room code: %w", err)
	}
	return code, nil
}

// Create opens a new room and binds the calling connection as its host. The
// connection receives room.created followed by its first snapshot.
func (s *RoomService) Create(ctx context.Context, sub Subscriber, req CreateRequest) (CreateResult, error) {
	pack, err := s.resolvePack(ctx, req)
	if err != nil {
		return CreateResult{}, err
	}
	settings, err := initialSettings(pack, req.Settings)
	if err != nil {
		return CreateResult{}, err
	}

	hostToken := uuid.NewString()
	var session *Session
	for attempt := 0; session == nil; attempt++ {
		if attempt == maxCodeAttempts {
			return CreateResult{}, fmt.Errorf("allocate room code: %d collisions", maxCodeAttempts)
		}
		code, err := s.newCode()
		if err != nil {
			return CreateResult{}, err
		}
		candidate := newSession(code, uuid.NewString(), hostToken, pack, settings, s.sessionConfig())
		ok, err := s.rooms.Reserve(ctx, code, candidate)
		if err != nil {
			return CreateResult{}, fmt.Errorf("reserve room code: %w", err)
		}
		if ok {
			session = candidate
		}
	}

	log.Info().
		Str("room_id", session.ID()).
		Str("pack_id", pack.ID).
		Str("connection_id", sub.ID()).
		Msg("room created")

	res := CreateResult{RoomID: session.ID(), HostToken: hostToken}
	sub.Deliver(Event{Type: EventCreated, Payload: res})
	s.detach(ctx, sub.ID(), session.ID())
	if err := session.join(sub, JoinRequest{RoomID: session.ID(), Role: domain.RoleHost, HostToken: hostToken}); err != nil {
		return CreateResult{}, err
	}
	s.attach(sub.ID(), session.ID())
	s.after(ctx, session)
	return res, nil
}

func (s *RoomService) resolvePack(ctx context.Context, req CreateRequest) (domain.Pack, error) {
	if req.Pack != nil {
		if err := req.Pack.Validate(); err != nil {
			return domain.Pack{}, err
		}
		return *req.Pack, nil
	}
	if strings.TrimSpace(req.PackID) == "" {
		return domain.Pack{}, domain.ErrMissingPack
	}
	if s.packs == nil {
		return domain.Pack{}, domain.ErrPackNotFound
	}
	pack, err := s.packs.GetPack(ctx, req.PackID)
	if err != nil {
		return domain.Pack{}, err
	}
	if err := pack.Validate(); err != nil {
		return domain.Pack{}, err
	}
	return pack, nil
}

func initialSettings(pack domain.Pack, overrides map[string]any) (domain.Settings, error) {
	settings := domain.DefaultSettings()
	if pack.SpeedBonusDefault != nil {
		settings.SpeedBonusEnabled = *pack.SpeedBonusDefault
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := settings.Set(k, overrides[k]); err != nil {
			return domain.Settings{}, fmt.Errorf("%w: %s", err, k)
		}
	}
	return settings, nil
}

func (s *RoomService) sessionConfig() sessionConfig {
	return sessionConfig{
		clock:            s.clock,
		policy:           s.opts.Policy,
		leaderboardSize:  s.opts.LeaderboardSize,
		autoAdvanceGrace: s.opts.AutoAdvanceGrace,
		afterAsync: func(session *Session) {
			s.after(context.Background(), session)
		},
	}
}

// Join binds a connection to a room. Rejoining with a known player id resumes
// that player. A connection is a member of at most one room; joining another
// room leaves the previous one.
func (s *RoomService) Join(ctx context.Context, sub Subscriber, req JoinRequest) error {
	if !req.Role.Valid() {
		return domain.ErrUnknownRole
	}
	session, err := s.session(req.RoomID)
	if err != nil {
		return err
	}
	s.detach(ctx, sub.ID(), session.ID())
	if err := session.join(sub, req); err != nil {
		return err
	}
	s.attach(sub.ID(), session.ID())
	s.after(ctx, session)
	return nil
}

// Leave unbinds the connection from the room.
func (s *RoomService) Leave(ctx context.Context, connID, roomID string) error {
	session, err := s.session(roomID)
	if err != nil {
		return err
	}
	if !session.leave(connID) {
		return domain.ErrNotJoined
	}
	s.mu.Lock()
	if s.connRooms[connID] == roomID {
		delete(s.connRooms, connID)
	}
	s.mu.Unlock()
	s.after(ctx, session)
	return nil
}

// Disconnect drops a closed connection from whatever room it was in.
func (s *RoomService) Disconnect(ctx context.Context, connID string) {
	s.detach(ctx, connID, "")
}

// detach removes connID from its current room unless that room is keep.
func (s *RoomService) detach(ctx context.Context, connID, keep string) {
	s.mu.Lock()
	roomID, ok := s.connRooms[connID]
	if ok && roomID != keep {
		delete(s.connRooms, connID)
	}
	s.mu.Unlock()
	if !ok || roomID == keep {
		return
	}
	session, found := s.rooms.Get(roomID)
	if !found {
		return
	}
	if session.leave(connID) {
		s.after(ctx, session)
	}
}

func (s *RoomService) attach(connID, roomID string) {
	s.mu.Lock()
	s.connRooms[connID] = roomID
	s.mu.Unlock()
}

// SetState moves the room to next (host only).
func (s *RoomService) SetState(ctx context.Context, connID, roomID string, next domain.RoomState) error {
	return s.apply(ctx, roomID, func(session *Session) error {
		return session.setState(connID, next)
	})
}

// Next advances the room along the normal game flow (host only).
func (s *RoomService) Next(ctx context.Context, connID, roomID string) error {
	return s.apply(ctx, roomID, func(session *Session) error {
		return session.next(connID)
	})
}

// ToggleSetting changes a room setting (host only).
func (s *RoomService) ToggleSetting(ctx context.Context, connID, roomID, key string, value any) error {
	return s.apply(ctx, roomID, func(session *Session) error {
		return session.toggleSetting(connID, key, value)
	})
}

// SubmitResponse records and grades a player's answer.
func (s *RoomService) SubmitResponse(ctx context.Context, connID string, req SubmitRequest) error {
	return s.apply(ctx, req.RoomID, func(session *Session) error {
		return session.submit(connID, req)
	})
}

// ResolveDispute applies a host verdict to the revealed question.
func (s *RoomService) ResolveDispute(ctx context.Context, connID string, req DisputeRequest) error {
	return s.apply(ctx, req.RoomID, func(session *Session) error {
		return session.resolveDispute(connID, req)
	})
}

// GradeResponse records the host verdict on a host-review response.
func (s *RoomService) GradeResponse(ctx context.Context, connID string, req GradeRequest) error {
	return s.apply(ctx, req.RoomID, func(session *Session) error {
		return session.gradeResponse(connID, req)
	})
}

func (s *RoomService) apply(ctx context.Context, roomID string, cmd func(*Session) error) error {
	session, err := s.session(roomID)
	if err != nil {
		return err
	}
	if err := cmd(session); err != nil {
		return err
	}
	s.after(ctx, session)
	return nil
}

// Session returns the live session for roomID.
func (s *RoomService) Session(roomID string) (*Session, error) {
	return s.session(roomID)
}

func (s *RoomService) session(roomID string) (*Session, error) {
	session, ok := s.rooms.Get(strings.ToUpper(strings.TrimSpace(roomID)))
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return session, nil
}

// Snapshot returns a role projection of a live room. Rooms that are not live in
// this process fall back to the last stored display snapshot.
func (s *RoomService) Snapshot(ctx context.Context, roomID string, role domain.Role) (domain.Snapshot, error) {
	if session, err := s.session(roomID); err == nil {
		return session.Snapshot(role, ""), nil
	}
	if s.snapshots == nil || role != domain.RoleDisplay {
		return domain.Snapshot{}, domain.ErrRoomNotFound
	}
	return s.snapshots.Load(ctx, strings.ToUpper(strings.TrimSpace(roomID)))
}

// after hands queued events to collaborators once a command has been applied.
// Collaborator failures are logged and never undo the command.
func (s *RoomService) after(ctx context.Context, session *Session) {
	session.publishMu.Lock()
	defer session.publishMu.Unlock()

	events := session.drainEvents()
	for _, ev := range events {
		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, ev); err != nil {
				log.Error().Err(err).Str("room_id", ev.RoomID).Str("event", ev.Type).Msg("publish room event")
			}
		}
		if ev.Type != domain.EventRoomEnded || s.archiver == nil {
			continue
		}
		result, ok := ev.Data.(domain.RoomResult)
		if !ok {
			continue
		}
		if err := s.archiver.Archive(ctx, result); err != nil {
			log.Error().Err(err).Str("room_id", ev.RoomID).Msg("archive room result")
		}
	}
	if s.snapshots != nil && len(events) > 0 {
		if err := s.snapshots.Save(ctx, session.Snapshot(domain.RoleDisplay, "")); err != nil {
			log.Error().Err(err).Str("room_id", session.ID()).Msg("save room snapshot")
		}
	}
}

// Sweep removes ended rooms past their grace period and idle rooms without
// connections. It returns the number of rooms removed.
func (s *RoomService) Sweep(ctx context.Context) int {
	now := s.clock.Now()
	removed := 0
	for _, session := range s.rooms.List() {
		st := session.status()
		expired := st.state.Terminal() && now.Sub(st.endedAt) >= s.opts.EndedGrace
		idle := st.connections == 0 && now.Sub(st.lastActive) >= s.opts.IdleTTL
		if !expired && !idle {
			continue
		}
		s.remove(ctx, session)
		removed++
		log.Info().
			Str("room_id", session.ID()).
			Str("state", string(st.state)).
			Bool("idle", idle && !expired).
			Msg("room removed by janitor")
	}
	return removed
}

func (s *RoomService) remove(ctx context.Context, session *Session) {
	conns := session.shutdown()
	s.mu.Lock()
	for _, connID := range conns {
		if s.connRooms[connID] == session.ID() {
			delete(s.connRooms, connID)
		}
	}
	s.mu.Unlock()
	if err := s.rooms.Delete(ctx, session.ID()); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		log.Error().Err(err).Str("room_id", session.ID()).Msg("delete room")
	}
}

// RunJanitor sweeps every interval until ctx is done.
func (s *RoomService) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Sweep(ctx)
		}
	}
}

// Shutdown closes every live room.
func (s *RoomService) Shutdown(ctx context.Context) {
	for _, session := range s.rooms.List() {
		s.remove(ctx, session)
	}
}
