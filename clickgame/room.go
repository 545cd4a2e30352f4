package clickgame

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vctt94/bisonbotkit/utils"
)

// Status is the discriminant of the room state machine.
type Status string

const (
	StatusWaiting         Status = "waiting"
	StatusBetConfirmation Status = "betConfirmation"
	StatusReady           Status = "ready"
	StatusCountdown       Status = "countdown"
	StatusPlaying         Status = "playing"
	StatusPayout          Status = "payout"
	StatusFinished        Status = "finished"
)

const (
	// DefaultCountdown is the number of ticks between both players
	// readying up and the match starting.
	DefaultCountdown = 10

	// DefaultGameTime is the match clock, in ticks.
	DefaultGameTime = 30

	// FeeFraction is the house cut taken from the pot on payout.
	FeeFraction = 0.05

	// WinnerTie and WinnerNone are the sentinel results for matches
	// without a strict winner.
	WinnerTie  = "Tie"
	WinnerNone = "No winner"
)

// Room is a single two-player session. The embedded mutex serializes
// every event applied to the room, client-originated and timer-driven
// alike; no two mutations of the same room may interleave.
type Room struct {
	sync.Mutex
	Ctx    context.Context
	Cancel context.CancelFunc

	ID      string
	Name    string
	Stake   float64
	Player1 *Player
	Player2 *Player

	Status    Status
	Countdown int
	GameTime  int
	Winner    string
	TotalPot  float64
	Payout    float64

	// staked gates the betConfirmation phase between join and ready.
	staked bool

	// removed is set under the room lock when the room leaves the
	// registry, so a caller that resolved the room before the removal
	// finds it dead instead of mutating a ghost.
	removed bool

	// timerGen invalidates in-flight timer callbacks. Every timer arm,
	// eviction and reset bumps it; a tick whose captured generation no
	// longer matches is discarded instead of applied.
	timerGen uint64
}

// RoomState is the broadcast snapshot of a room. Field names match the
// wire protocol consumed by clients.
type RoomState struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	BetAmount float64 `json:"betAmount"`
	Player1   *Player `json:"player1"`
	Player2   *Player `json:"player2"`
	Status    Status  `json:"status"`
	Countdown int     `json:"countdown"`
	GameTime  int     `json:"gameTime"`
	Winner    string  `json:"winner,omitempty"`
	TotalPot  float64 `json:"totalPot"`
	Payout    float64 `json:"payout,omitempty"`
}

func newRoomID() (string, error) {
	suffix, err := utils.GenerateRandomString(9)
	if err != nil {
		return "", fmt.Errorf("failed to generate room ID: %w", err)
	}
	return fmt.Sprintf("room_%d_%s", time.Now().UnixMilli(), suffix), nil
}

// newRoom seats the host in slot 1 of a fresh waiting room.
func newRoom(name string, host *Player, stake float64, staked bool) (*Room, error) {
	id, err := newRoomID()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Room{
		Ctx:       ctx,
		Cancel:    cancel,
		ID:        id,
		Name:      name,
		Stake:     stake,
		Player1:   host,
		Status:    StatusWaiting,
		Countdown: DefaultCountdown,
		GameTime:  DefaultGameTime,
		staked:    staked && stake > 0,
	}, nil
}

// Marshal returns a broadcast snapshot of the room.
func (r *Room) Marshal() *RoomState {
	r.Lock()
	defer r.Unlock()
	return r.marshalLocked()
}

func (r *Room) marshalLocked() *RoomState {
	st := &RoomState{
		ID:        r.ID,
		Name:      r.Name,
		BetAmount: r.Stake,
		Status:    r.Status,
		Countdown: r.Countdown,
		GameTime:  r.GameTime,
		Winner:    r.Winner,
		TotalPot:  r.TotalPot,
		Payout:    r.Payout,
	}
	if r.Player1 != nil {
		p := *r.Player1
		st.Player1 = &p
	}
	if r.Player2 != nil {
		p := *r.Player2
		st.Player2 = &p
	}
	return st
}

// playerLocked returns the seated player owned by connID, or nil.
func (r *Room) playerLocked(connID string) *Player {
	if r.Player1 != nil && r.Player1.ID == connID {
		return r.Player1
	}
	if r.Player2 != nil && r.Player2.ID == connID {
		return r.Player2
	}
	return nil
}

func (r *Room) occupantIDsLocked() []string {
	ids := make([]string, 0, 2)
	if r.Player1 != nil {
		ids = append(ids, r.Player1.ID)
	}
	if r.Player2 != nil {
		ids = append(ids, r.Player2.ID)
	}
	return ids
}

// resetToWaitingLocked re-normalizes the room after an eviction: the
// surviving player keeps slot 1, all per-match flags are cleared and
// any armed timer is invalidated.
func (r *Room) resetToWaitingLocked(survivor *Player) {
	survivor.Ready = false
	survivor.StakePaid = false
	survivor.Clicks = 0
	survivor.EscrowRef = ""
	r.Player1 = survivor
	r.Player2 = nil
	r.Status = StatusWaiting
	r.Countdown = DefaultCountdown
	r.GameTime = DefaultGameTime
	r.Winner = ""
	r.TotalPot = 0
	r.Payout = 0
	r.timerGen++
}

// computeWinner is total and deterministic: higher click count wins by
// name, equal counts tie, a missing player yields no winner.
func computeWinner(p1, p2 *Player) string {
	if p1 == nil || p2 == nil {
		return WinnerNone
	}
	switch {
	case p1.Clicks > p2.Clicks:
		return p1.Name
	case p2.Clicks > p1.Clicks:
		return p2.Name
	default:
		return WinnerTie
	}
}
