package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Service errors surfaced to handlers. Every one of them leaves the
// transaction fully rolled back: a rejected request never has side effects.
var (
	// Not found / membership
	ErrMatchNotFound    = errors.New("match not found")
	ErrPlayerNotInMatch = errors.New("player not part of match")

	// Validation (malformed request)
	ErrMissingFields   = errors.New("missing required fields")
	ErrInvalidGameType = errors.New("unknown game type")
	ErrInvalidChoice   = errors.New("invalid choice")
	ErrIndexOutOfRange = errors.New("cell index out of range")

	// State (request well-formed, match disagrees)
	ErrMatchNotOngoing        = errors.New("match not ongoing")
	ErrMatchNotAcceptingMoves = errors.New("match not accepting moves")
	ErrNotYourTurn            = errors.New("not your turn")
	ErrCellOccupied           = errors.New("cell already occupied")
)

// StatusForError maps a service error to its HTTP status. Anything unmapped
// is an internal error and must not leak details to the caller.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrMatchNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrPlayerNotInMatch):
		return fiber.StatusForbidden
	case errors.Is(err, ErrMissingFields),
		errors.Is(err, ErrInvalidGameType),
		errors.Is(err, ErrInvalidChoice),
		errors.Is(err, ErrIndexOutOfRange):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrMatchNotOngoing),
		errors.Is(err, ErrMatchNotAcceptingMoves),
		errors.Is(err, ErrNotYourTurn),
		errors.Is(err, ErrCellOccupied):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
