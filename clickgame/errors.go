package clickgame

import "errors"

var (
	// ErrRoomUnavailable is returned when a join targets a room that is
	// missing, full, or no longer waiting for players.
	ErrRoomUnavailable = errors.New("room not available")

	// ErrUnauthorized is returned when a claim comes from a connection
	// that is not seated as the recorded winner.
	ErrUnauthorized = errors.New("not authorized to claim winnings")

	// ErrEscrowFailure indicates the external deposit confirmation did
	// not succeed.
	ErrEscrowFailure = errors.New("escrow confirmation failed")
)
