package domain

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the engine wraps exactly one of these.
var (
	// ErrValidation marks a malformed command payload.
	ErrValidation = errors.New("invalid command")
	// ErrUnauthorized marks a missing or wrong host/player credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrStateConflict marks a command that is illegal for the room's current state.
	ErrStateConflict = errors.New("state conflict")
	// ErrNotFound marks an unknown room or pack.
	ErrNotFound = errors.New("not found")
)

var (
	ErrRoomNotFound   = fmt.Errorf("%w: room not found", ErrNotFound)
	ErrPackNotFound   = fmt.Errorf("%w: pack not found", ErrNotFound)
	ErrPlayerNotFound = fmt.Errorf("%w: player not found in room", ErrNotFound)

	ErrHostOnly       = fmt.Errorf("%w: host credentials required", ErrUnauthorized)
	ErrNotYourPlayer  = fmt.Errorf("%w: connection is not bound to this player", ErrUnauthorized)
	ErrInvalidToken   = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrNotJoined      = fmt.Errorf("%w: connection has not joined this room", ErrUnauthorized)
	ErrPlayerRoleOnly = fmt.Errorf("%w: only players may submit responses", ErrUnauthorized)

	ErrInvalidTransition     = fmt.Errorf("%w: invalid state transition", ErrStateConflict)
	ErrNotAcceptingResponses = fmt.Errorf("%w: room state is no longer ACTIVE_ROUND", ErrStateConflict)
	ErrStaleQuestion         = fmt.Errorf("%w: question is not the current question", ErrStateConflict)
	ErrDuplicateResponse     = fmt.Errorf("%w: response already submitted for this question", ErrStateConflict)
	ErrRoomEnded             = fmt.Errorf("%w: room has ended", ErrStateConflict)
	ErrNoMoreQuestions       = fmt.Errorf("%w: no more questions in pack", ErrStateConflict)
	ErrDisputeNotAllowed     = fmt.Errorf("%w: disputes can only be resolved during REVEAL", ErrStateConflict)
	ErrQuestionVoided        = fmt.Errorf("%w: question has been voided", ErrStateConflict)
	ErrResponseNotPending    = fmt.Errorf("%w: response is not awaiting host review", ErrStateConflict)

	ErrUnknownState     = fmt.Errorf("%w: unknown room state", ErrValidation)
	ErrUnknownRole      = fmt.Errorf("%w: unknown role", ErrValidation)
	ErrUnknownSetting   = fmt.Errorf("%w: unknown setting", ErrValidation)
	ErrSettingValue     = fmt.Errorf("%w: invalid setting value", ErrValidation)
	ErrPayloadMismatch  = fmt.Errorf("%w: payload does not match question type", ErrValidation)
	ErrOptionNotFound   = fmt.Errorf("%w: option not found", ErrValidation)
	ErrWagerNotAllowed  = fmt.Errorf("%w: wagers are only allowed on the final wager question", ErrValidation)
	ErrInvalidWager     = fmt.Errorf("%w: wager must be a non-negative amount", ErrValidation)
	ErrUnknownDispute   = fmt.Errorf("%w: unknown dispute action", ErrValidation)
	ErrVariantNotText   = fmt.Errorf("%w: variants can only be accepted for short-answer questions", ErrValidation)
	ErrEmptyVariant     = fmt.Errorf("%w: variant text is required", ErrValidation)
	ErrMissingPlayerID  = fmt.Errorf("%w: playerId is required", ErrValidation)
	ErrMissingPack      = fmt.Errorf("%w: pack or packId is required", ErrValidation)
	ErrInvalidPack      = fmt.Errorf("%w: invalid pack", ErrValidation)
	ErrQuestionNotFound = fmt.Errorf("%w: question not found in pack", ErrValidation)
)

// Kind is the wire code of an error category.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindUnauthorized  Kind = "unauthorized"
	KindStateConflict Kind = "state_conflict"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// KindOf classifies err into one of the error categories.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrStateConflict):
		return KindStateConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

// Invalidf builds a validation error with a custom message.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
