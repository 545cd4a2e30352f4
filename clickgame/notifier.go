package clickgame

import "context"

// Wire event names, shared with the socket gateway.
const (
	EvtRoomsList     = "rooms:list"
	EvtRoomJoined    = "room:joined"
	EvtRoomUpdated   = "room:updated"
	EvtRoomCountdown = "room:countdown"
	EvtGameStart     = "room:game-start"
	EvtGameEnd       = "room:game-end"
	EvtBetRequired   = "room:bet-required"
	EvtBetConfirmed  = "room:bet-confirmed"
	EvtPayoutReady   = "room:payout-ready"
	EvtPlayerClick   = "player:click"
	EvtError         = "error"
)

// Ntfn is one outbound event pushed to connected peers. Data is always
// present on the wire: an empty lobby list must reach clients as [],
// not as a missing key.
type Ntfn struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Notifier is the one-way sink the manager pushes room state through.
// Implementations must not block; slow receivers are the transport's
// problem, not the room state machine's.
type Notifier interface {
	Notify(connID string, ntfn Ntfn)
	Broadcast(ntfn Ntfn)
}

// JoinedPayload is sent to the joining connection only.
type JoinedPayload struct {
	Room   *RoomState `json:"room"`
	Player *Player    `json:"player"`
}

type ClickPayload struct {
	PlayerID string `json:"playerId"`
	Clicks   int    `json:"clicks"`
}

type PayoutPayload struct {
	Winner string  `json:"winner"`
	Amount float64 `json:"amount"`
}

// EscrowOracle is the opaque payment collaborator. ConfirmDeposit
// verifies a signed stake proof; ReleasePayout kicks off the winner
// transfer and is treated as fire-and-forget by the state machine.
type EscrowOracle interface {
	ConfirmDeposit(ctx context.Context, signature string) error
	ReleasePayout(ctx context.Context, walletRef string, amount float64) error
}

// NoopOracle accepts every proof and releases nothing. Used for
// free-to-play mode and in tests.
type NoopOracle struct{}

func (NoopOracle) ConfirmDeposit(ctx context.Context, signature string) error { return nil }

func (NoopOracle) ReleasePayout(ctx context.Context, walletRef string, amount float64) error {
	return nil
}
