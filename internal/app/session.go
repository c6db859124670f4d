package app

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"trivia-room-service/internal/domain"
)

// JoinRequest binds a connection to a room under a role.
type JoinRequest struct {
	RoomID      string
	Role        domain.Role
	PlayerID    string
	DisplayName string
	IsAnonymous bool
	HostToken   string
}

// SubmitRequest is a player's answer to the current question.
type SubmitRequest struct {
	RoomID     string
	QuestionID string
	PlayerID   string
	Payload    domain.ResponsePayload
	Wager      *int
}

// DisputeAction is a host verdict on a revealed question.
type DisputeAction string

const (
	DisputeConfirm       DisputeAction = "confirm"
	DisputeAcceptVariant DisputeAction = "accept_variant"
	DisputeVoid          DisputeAction = "void"
)

// DisputeRequest resolves a dispute on the revealed question.
type DisputeRequest struct {
	RoomID      string
	QuestionID  string
	Action      DisputeAction
	VariantText string
}

// GradeRequest is the host verdict on a host-review response.
type GradeRequest struct {
	RoomID     string
	QuestionID string
	PlayerID   string
	Correct    bool
}

type questionState struct {
	closed   bool
	voided   bool
	variants []string
}

type sessionConfig struct {
	clock            clockwork.Clock
	policy           ScoringPolicy
	leaderboardSize  int
	autoAdvanceGrace time.Duration
	// afterAsync runs after a timer-driven change so collaborators see it.
	afterAsync func(*Session)
}

// Session owns one room: lifecycle state, players, responses and subscribers.
// Every command holds mu for its whole duration, so commands on one room are
// applied in a single total order.
type Session struct {
	mu  sync.Mutex
	cfg sessionConfig

	room      domain.Room
	hostToken string
	pack      domain.Pack
	questions []questionState
	players   map[string]*domain.Player
	members   *membership
	ledger    *ledger
	timer     *questionTimer

	version    uint64
	lastActive time.Time
	eventSeq   uint64
	events     []domain.RoomEvent

	// publishMu keeps drained event batches in emit order while they are
	// handed to collaborators outside mu.
	publishMu sync.Mutex
}

func newSession(roomID, hostID, hostToken string, pack domain.Pack, settings domain.Settings, cfg sessionConfig) *Session {
	now := cfg.clock.Now()
	s := &Session{
		cfg:        cfg,
		hostToken:  hostToken,
		pack:       pack,
		questions:  make([]questionState, len(pack.Questions)),
		players:    make(map[string]*domain.Player),
		members:    newMembership(),
		ledger:     newLedger(),
		timer:      newQuestionTimer(cfg.clock),
		lastActive: now,
	}
	s.room = domain.Room{
		RoomID:    roomID,
		CreatedAt: now,
		State:     domain.StateRoomCreated,
		Mode:      "trivia",
		PackID:    pack.ID,
		HostID:    hostID,
		Settings:  settings,
		Runtime: domain.Runtime{
			TimeLimitSec: pack.Questions[0].TimeLimitSec,
			RoundIndex:   pack.RoundIndex(0),
		},
	}
	// Creation immediately opens the waiting room.
	s.room.State = domain.StateWaitingRoom
	s.emitLocked(domain.EventRoomCreated, map[string]any{"packId": pack.ID, "state": s.room.State})
	return s
}

// ID returns the room code.
func (s *Session) ID() string {
	return s.room.RoomID
}

// State returns the current lifecycle state.
func (s *Session) State() domain.RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room.State
}

func (s *Session) join(sub Subscriber, req JoinRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.clock.Now()
	playerID := ""
	newPlayer := false

	switch req.Role {
	case domain.RoleHost:
		if subtle.ConstantTimeCompare([]byte(req.HostToken), []byte(s.hostToken)) != 1 {
			return domain.ErrInvalidToken
		}
	case domain.RolePlayer:
		playerID = strings.TrimSpace(req.PlayerID)
		if playerID == "" {
			return domain.ErrMissingPlayerID
		}
		if p, ok := s.players[playerID]; ok {
			p.LastSeenAt = now
			p.Connected = true
		} else {
			if s.room.State.Terminal() {
				return domain.ErrRoomEnded
			}
			s.players[playerID] = &domain.Player{
				PlayerID:    playerID,
				DisplayName: s.uniqueDisplayNameLocked(playerID, req.DisplayName),
				IsAnonymous: req.IsAnonymous,
				JoinedAt:    now,
				LastSeenAt:  now,
				Connected:   true,
			}
			newPlayer = true
		}
	case domain.RoleDisplay:
	default:
		return domain.ErrUnknownRole
	}

	if replaced := s.members.bind(sub, req.Role, playerID); replaced != nil {
		log.Debug().
			Str("room_id", s.room.RoomID).
			Str("player_id", playerID).
			Str("connection_id", replaced.ID()).
			Msg("player resumed on a new connection; closing previous one")
		replaced.Close()
	}
	s.lastActive = now

	if newPlayer {
		p := s.players[playerID]
		s.emitLocked(domain.EventPlayerJoined, map[string]any{"playerId": p.PlayerID, "displayName": p.DisplayName})
	}
	s.broadcastLocked()
	return nil
}

// uniqueDisplayNameLocked suffixes " (2)", " (3)"... when the name is already taken.
func (s *Session) uniqueDisplayNameLocked(playerID, name string) string {
	base := strings.TrimSpace(name)
	if base == "" {
		base = "Player"
	}
	used := make(map[string]bool, len(s.players))
	for id, p := range s.players {
		if id != playerID {
			used[strings.ToLower(p.DisplayName)] = true
		}
	}
	if !used[strings.ToLower(base)] {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", base, n)
		if !used[strings.ToLower(candidate)] {
			return candidate
		}
	}
}

func (s *Session) leave(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	mem, ok := s.members.unbind(connID)
	if !ok {
		return false
	}
	now := s.cfg.clock.Now()
	s.markUnseenLocked(mem, now)
	s.lastActive = now
	s.broadcastLocked()
	return true
}

func (s *Session) markUnseenLocked(mem *member, now time.Time) {
	if mem.playerID == "" || s.members.playerConnected(mem.playerID) {
		return
	}
	if p, ok := s.players[mem.playerID]; ok {
		p.Connected = false
		p.LastSeenAt = now
	}
}

// requireHostLocked authorizes host-only commands. A connection that has not
// joined gets the same answer as a non-host so nothing about the room leaks.
func (s *Session) requireHostLocked(connID string) error {
	mem, ok := s.members.get(connID)
	if !ok || mem.role != domain.RoleHost {
		return domain.ErrHostOnly
	}
	return nil
}

func (s *Session) setState(connID string, next domain.RoomState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireHostLocked(connID); err != nil {
		return err
	}
	if err := s.transitionLocked(next); err != nil {
		return err
	}
	s.broadcastLocked()
	return nil
}

func (s *Session) next(connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireHostLocked(connID); err != nil {
		return err
	}

	idx := s.room.Runtime.CurrentQuestionIndex
	more := idx+1 < len(s.pack.Questions)
	var target domain.RoomState
	switch s.room.State {
	case domain.StateRoomCreated:
		target = domain.StateWaitingRoom
	case domain.StateWaitingRoom:
		target = domain.StateReadyCheck
	case domain.StateReadyCheck:
		target = domain.StateActiveRound
	case domain.StateActiveRound:
		target = domain.StateReveal
	case domain.StateReveal:
		target = domain.StateLeaderboard
		if more {
			target = domain.StateActiveRound
		}
	case domain.StateLeaderboard:
		target = domain.StateReview
		if more {
			target = domain.StateActiveRound
		}
	case domain.StateReview:
		target = domain.StateEndRoom
	default:
		return domain.ErrRoomEnded
	}

	if err := s.transitionLocked(target); err != nil {
		return err
	}
	s.broadcastLocked()
	return nil
}

// transitionLocked validates and applies a state change. Nothing is mutated
// unless the change is legal.
func (s *Session) transitionLocked(next domain.RoomState) error {
	cur := s.room.State
	if !next.Valid() {
		return domain.ErrUnknownState
	}
	if cur.Terminal() {
		return domain.ErrRoomEnded
	}
	if !domain.CanTransition(cur, next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, cur, next)
	}

	idx := s.room.Runtime.CurrentQuestionIndex
	if next == domain.StateActiveRound && s.questions[idx].closed {
		// A closed question never reopens; entering the round moves on.
		if idx+1 >= len(s.pack.Questions) {
			return domain.ErrNoMoreQuestions
		}
		idx++
	}

	now := s.cfg.clock.Now()
	if cur == domain.StateActiveRound {
		s.closeQuestionLocked()
	}
	s.room.State = next

	switch next {
	case domain.StateActiveRound:
		s.openQuestionLocked(idx, now)
	case domain.StateReveal:
		s.room.Runtime.RevealAt = &now
	case domain.StateEndRoom:
		s.room.Runtime.EndedAt = &now
		s.timer.cancel()
	}
	s.lastActive = now

	log.Debug().
		Str("room_id", s.room.RoomID).
		Str("from", string(cur)).
		Str("state", string(next)).
		Int("question_index", s.room.Runtime.CurrentQuestionIndex).
		Msg("room state changed")

	s.emitLocked(domain.EventStateChanged, map[string]any{
		"from":                 cur,
		"to":                   next,
		"currentQuestionIndex": s.room.Runtime.CurrentQuestionIndex,
	})
	if next == domain.StateEndRoom {
		s.emitLocked(domain.EventRoomEnded, s.resultLocked())
	}
	return nil
}

func (s *Session) openQuestionLocked(idx int, now time.Time) {
	q := s.pack.Questions[idx]
	rt := &s.room.Runtime
	rt.CurrentQuestionIndex = idx
	rt.RoundIndex = s.pack.RoundIndex(idx)
	rt.QuestionStartAt = &now
	rt.RevealAt = nil
	rt.TimeLimitSec = q.TimeLimitSec
	s.scheduleAutoAdvanceLocked(now)
}

// closeQuestionLocked finalizes grading for the current question: no further
// submissions are accepted for it.
func (s *Session) closeQuestionLocked() {
	s.questions[s.room.Runtime.CurrentQuestionIndex].closed = true
	s.timer.cancel()
}

// scheduleAutoAdvanceLocked arms the reveal timer when auto-advance applies to
// the open question.
func (s *Session) scheduleAutoAdvanceLocked(now time.Time) {
	if s.room.State != domain.StateActiveRound || !s.room.Settings.AutoAdvanceEnabled {
		return
	}
	q := s.pack.Questions[s.room.Runtime.CurrentQuestionIndex]
	limit := q.TimeLimit()
	if limit <= 0 || s.room.Runtime.QuestionStartAt == nil {
		return
	}
	deadline := s.room.Runtime.QuestionStartAt.Add(limit + s.cfg.autoAdvanceGrace)
	s.timer.schedule(deadline.Sub(now), s.expire)
}

// expire runs on the timer goroutine when a question's time runs out.
func (s *Session) expire(token uint64) {
	s.mu.Lock()
	if !s.timer.current(token) || s.room.State != domain.StateActiveRound {
		s.mu.Unlock()
		return
	}
	log.Debug().
		Str("room_id", s.room.RoomID).
		Int("question_index", s.room.Runtime.CurrentQuestionIndex).
		Msg("question timer expired; revealing")
	if err := s.transitionLocked(domain.StateReveal); err != nil {
		s.mu.Unlock()
		log.Error().Err(err).Str("room_id", s.room.RoomID).Msg("auto-advance failed")
		return
	}
	s.broadcastLocked()
	s.mu.Unlock()

	if s.cfg.afterAsync != nil {
		s.cfg.afterAsync(s)
	}
}

func (s *Session) toggleSetting(connID, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireHostLocked(connID); err != nil {
		return err
	}
	if s.room.State.Terminal() {
		return domain.ErrRoomEnded
	}
	settings := s.room.Settings
	if err := settings.Set(key, value); err != nil {
		return fmt.Errorf("%w: %s", err, key)
	}
	s.room.Settings = settings

	now := s.cfg.clock.Now()
	if key == domain.SettingAutoAdvanceEnabled {
		if settings.AutoAdvanceEnabled {
			if !s.timer.pending() {
				s.scheduleAutoAdvanceLocked(now)
			}
		} else {
			s.timer.cancel()
		}
	}
	s.lastActive = now
	s.emitLocked(domain.EventSettingChanged, map[string]any{"key": key, "value": value})
	s.broadcastLocked()
	return nil
}

func (s *Session) submit(connID string, req SubmitRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mem, ok := s.members.get(connID)
	if !ok {
		return domain.ErrNotJoined
	}
	if mem.role != domain.RolePlayer {
		return domain.ErrPlayerRoleOnly
	}
	playerID := req.PlayerID
	if playerID == "" {
		playerID = mem.playerID
	}
	if playerID != mem.playerID {
		return domain.ErrNotYourPlayer
	}
	player, ok := s.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	if s.room.State != domain.StateActiveRound {
		return domain.ErrNotAcceptingResponses
	}
	idx := s.room.Runtime.CurrentQuestionIndex
	q := s.pack.Questions[idx]
	if req.QuestionID != q.ID {
		return domain.ErrStaleQuestion
	}
	if _, dup := s.ledger.get(q.ID, playerID); dup {
		return domain.ErrDuplicateResponse
	}
	wager, err := s.wagerLocked(idx, player, req.Wager)
	if err != nil {
		return err
	}
	g, err := gradePayload(q, s.questions[idx].variants, req.Payload)
	if err != nil {
		return err
	}

	now := s.cfg.clock.Now()
	resp := &domain.Response{
		RoomID:       s.room.RoomID,
		QuestionID:   q.ID,
		PlayerID:     playerID,
		SubmittedAt:  now,
		Payload:      req.Payload,
		Wager:        wager,
		MatchedItems: g.matched,
		SpeedFactor:  s.speedFactorLocked(q, now),
	}
	if g.pending {
		resp.Status = domain.ResponsePending
	} else {
		resp.Status = domain.ResponseGraded
		resp.IsCorrect = g.correct
		resp.PointsAwarded = awardPoints(g, resp.SpeedFactor, wager)
	}
	if err := s.ledger.insert(resp); err != nil {
		return err
	}
	if resp.Status == domain.ResponseGraded {
		applyResponse(player, resp)
	}
	player.LastSeenAt = now
	s.lastActive = now

	s.emitLocked(domain.EventResponseRecorded, map[string]any{
		"questionId":     q.ID,
		"responsesCount": s.ledger.count(q.ID),
	})
	s.broadcastLocked()
	return nil
}

// wagerLocked validates a wager and caps it. Without a configured cap a player
// may stake at most their current displayed score.
func (s *Session) wagerLocked(idx int, player *domain.Player, wager *int) (*int, error) {
	if wager == nil {
		return nil, nil
	}
	if !s.pack.IsWagerQuestion(idx) {
		return nil, domain.ErrWagerNotAllowed
	}
	if *wager < 0 {
		return nil, domain.ErrInvalidWager
	}
	limit := s.cfg.policy.DisplayScore(player.Score)
	if limit < 0 {
		limit = 0
	}
	if s.room.Settings.FinalWagerCap != nil {
		limit = *s.room.Settings.FinalWagerCap
	}
	amount := min(*wager, limit)
	return &amount, nil
}

func (s *Session) speedFactorLocked(q domain.Question, at time.Time) float64 {
	if !s.room.Settings.SpeedBonusEnabled || !q.SpeedBonusEligible() || s.room.Runtime.QuestionStartAt == nil {
		return 1
	}
	return speedFactor(*s.room.Runtime.QuestionStartAt, at, q.TimeLimit(), s.cfg.policy.SpeedBonusFloor)
}

func (s *Session) resolveDispute(connID string, req DisputeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireHostLocked(connID); err != nil {
		return err
	}
	if s.room.State.Terminal() {
		return domain.ErrRoomEnded
	}
	if s.room.State != domain.StateReveal {
		return domain.ErrDisputeNotAllowed
	}
	idx := s.room.Runtime.CurrentQuestionIndex
	q := s.pack.Questions[idx]
	if req.QuestionID != q.ID {
		return domain.ErrStaleQuestion
	}
	qs := &s.questions[idx]

	data := map[string]any{"questionId": q.ID, "action": req.Action}
	switch req.Action {
	case DisputeConfirm:
	case DisputeAcceptVariant:
		if qs.voided {
			return domain.ErrQuestionVoided
		}
		answer, ok := q.Answer.(domain.TextAnswer)
		if !ok {
			return domain.ErrVariantNotText
		}
		variant := strings.TrimSpace(req.VariantText)
		if variant == "" {
			return domain.ErrEmptyVariant
		}
		if !containsFold(answer.AcceptedVariants, variant) && !containsFold(qs.variants, variant) &&
			!strings.EqualFold(answer.Primary, variant) {
			qs.variants = append(qs.variants, variant)
		}
		data["variant"] = variant
		data["flipped"] = s.regradeVariantLocked(q, answer, qs.variants)
	case DisputeVoid:
		if qs.voided {
			return domain.ErrQuestionVoided
		}
		s.voidQuestionLocked(q.ID)
		qs.voided = true
	default:
		return domain.ErrUnknownDispute
	}

	s.lastActive = s.cfg.clock.Now()
	s.emitLocked(domain.EventDisputeResolved, data)
	s.broadcastLocked()
	return nil
}

// regradeVariantLocked flips incorrect or pending responses that match the
// widened answer set to correct. Correct responses are never touched. Flipped
// responses earn base points without a speed factor.
func (s *Session) regradeVariantLocked(q domain.Question, answer domain.TextAnswer, variants []string) int {
	flipped := 0
	for _, r := range s.ledger.forQuestion(q.ID) {
		if r.Status == domain.ResponseVoided || r.IsCorrect {
			continue
		}
		if !matchText(answer, variants, strings.TrimSpace(r.Payload.Text)) {
			continue
		}
		p := s.players[r.PlayerID]
		if r.Status == domain.ResponseGraded {
			reverseResponse(p, r)
		}
		r.Status = domain.ResponseGraded
		r.IsCorrect = true
		r.PointsAwarded = awardPoints(grade{correct: true, earned: q.BasePoints()}, 1, r.Wager)
		r.Revision++
		applyResponse(p, r)
		flipped++
	}
	return flipped
}

// voidQuestionLocked reverses every point and count contributed by a question.
func (s *Session) voidQuestionLocked(questionID string) {
	for _, r := range s.ledger.forQuestion(questionID) {
		if r.Status == domain.ResponseGraded {
			reverseResponse(s.players[r.PlayerID], r)
		}
		r.Status = domain.ResponseVoided
		r.Revision++
	}
}

func (s *Session) gradeResponse(connID string, req GradeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireHostLocked(connID); err != nil {
		return err
	}
	if s.room.State.Terminal() {
		return domain.ErrRoomEnded
	}
	idx := s.questionIndexLocked(req.QuestionID)
	if idx < 0 {
		return domain.ErrQuestionNotFound
	}
	if s.questions[idx].voided {
		return domain.ErrQuestionVoided
	}
	r, ok := s.ledger.get(req.QuestionID, req.PlayerID)
	if !ok || r.Status != domain.ResponsePending {
		return domain.ErrResponseNotPending
	}

	q := s.pack.Questions[idx]
	g := grade{correct: req.Correct}
	if req.Correct {
		g.earned = q.BasePoints()
	}
	r.Status = domain.ResponseGraded
	r.IsCorrect = req.Correct
	r.PointsAwarded = awardPoints(g, r.SpeedFactor, r.Wager)
	r.Revision++
	applyResponse(s.players[r.PlayerID], r)

	s.lastActive = s.cfg.clock.Now()
	s.emitLocked(domain.EventResponseHostGrade, map[string]any{
		"questionId": req.QuestionID,
		"playerId":   req.PlayerID,
		"correct":    req.Correct,
	})
	s.broadcastLocked()
	return nil
}

func (s *Session) questionIndexLocked(questionID string) int {
	for i, q := range s.pack.Questions {
		if q.ID == questionID {
			return i
		}
	}
	return -1
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}

func (s *Session) emitLocked(typ string, data any) {
	s.eventSeq++
	s.events = append(s.events, domain.RoomEvent{
		Type:   typ,
		RoomID: s.room.RoomID,
		Seq:    s.eventSeq,
		At:     s.cfg.clock.Now(),
		Data:   data,
	})
}

// drainEvents hands queued collaborator events to the caller.
func (s *Session) drainEvents() []domain.RoomEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

func (s *Session) resultLocked() domain.RoomResult {
	res := domain.RoomResult{
		RoomID:    s.room.RoomID,
		PackID:    s.pack.ID,
		CreatedAt: s.room.CreatedAt,
		Standings: rankPlayers(s.players, s.cfg.policy),
	}
	if s.room.Runtime.EndedAt != nil {
		res.EndedAt = *s.room.Runtime.EndedAt
	}
	for i, qs := range s.questions {
		if qs.voided {
			res.Voided = append(res.Voided, s.pack.Questions[i].ID)
		}
	}
	return res
}

// Player returns a copy of a player's record.
func (s *Session) Player(playerID string) (domain.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return domain.Player{}, false
	}
	return *p, true
}

// Response returns a copy of a player's response to a question.
func (s *Session) Response(questionID, playerID string) (domain.Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.ledger.get(questionID, playerID)
	if !ok {
		return domain.Response{}, false
	}
	return *r, true
}

// Leaderboard returns the full ranked standings.
func (s *Session) Leaderboard() []domain.LeaderboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rankPlayers(s.players, s.cfg.policy)
}

type sessionStatus struct {
	state       domain.RoomState
	endedAt     time.Time
	lastActive  time.Time
	connections int
}

func (s *Session) status() sessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := sessionStatus{
		state:       s.room.State,
		lastActive:  s.lastActive,
		connections: s.members.len(),
	}
	if s.room.Runtime.EndedAt != nil {
		st.endedAt = *s.room.Runtime.EndedAt
	}
	return st
}

// shutdown cancels timers and disconnects every subscriber.
func (s *Session) shutdown() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer.cancel()
	var conns []string
	for _, mem := range s.members.members() {
		s.members.unbind(mem.sub.ID())
		mem.sub.Close()
		conns = append(conns, mem.sub.ID())
	}
	return conns
}
