package domain

// RoomState is a step in the room lifecycle.
type RoomState string

const (
	StateRoomCreated RoomState = "ROOM_CREATED"
	StateWaitingRoom RoomState = "WAITING_ROOM"
	StateReadyCheck  RoomState = "READY_CHECK"
	StateActiveRound RoomState = "ACTIVE_ROUND"
	StateReveal      RoomState = "REVEAL"
	StateLeaderboard RoomState = "LEADERBOARD"
	StateReview      RoomState = "REVIEW"
	StateEndRoom     RoomState = "END_ROOM"
)

// StateOrder is the nominal forward sequence of the lifecycle.
var StateOrder = []RoomState{
	StateRoomCreated,
	StateWaitingRoom,
	StateReadyCheck,
	StateActiveRound,
	StateReveal,
	StateLeaderboard,
	StateReview,
	StateEndRoom,
}

// extraEdges are transitions permitted regardless of sequence position.
var extraEdges = map[RoomState][]RoomState{
	StateReveal:      {StateActiveRound, StateLeaderboard},
	StateLeaderboard: {StateActiveRound, StateReview, StateEndRoom},
	StateReadyCheck:  {StateActiveRound},
	StateActiveRound: {StateLeaderboard},
	StateReview:      {StateLeaderboard, StateEndRoom},
	StateWaitingRoom: {StateEndRoom},
}

func (s RoomState) index() int {
	for i, st := range StateOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s names a known lifecycle state.
func (s RoomState) Valid() bool {
	return s.index() >= 0
}

// Terminal reports whether no transition leaves s.
func (s RoomState) Terminal() bool {
	return s == StateEndRoom
}

// CanTransition reports whether a room in state from may move to state to.
// Allowed moves are the explicit edges above plus the next sequential state.
func CanTransition(from, to RoomState) bool {
	i, j := from.index(), to.index()
	if i < 0 || j < 0 || from.Terminal() {
		return false
	}
	for _, edge := range extraEdges[from] {
		if edge == to {
			return true
		}
	}
	return j == i+1
}

// AllowedTransitions lists every state reachable from s in one step, in lifecycle order.
func AllowedTransitions(s RoomState) []RoomState {
	var out []RoomState
	for _, to := range StateOrder {
		if CanTransition(s, to) {
			out = append(out, to)
		}
	}
	return out
}
