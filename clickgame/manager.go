package clickgame

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/decred/slog"
)

// Config tunes the manager. Zero values fall back to production
// defaults; tests shrink the intervals.
type Config struct {
	// StakingEnabled interposes the betConfirmation phase between join
	// and ready for rooms created with a positive stake.
	StakingEnabled bool

	// TickInterval is the wall-clock length of one countdown or match
	// clock tick.
	TickInterval time.Duration

	// RemoveGrace is how long a finished room lingers in the registry
	// so late broadcasts can still be observed.
	RemoveGrace time.Duration

	// ConfirmTimeout bounds a single escrow confirmation round-trip.
	ConfirmTimeout time.Duration
}

// GameManager owns the room registry and the session tracker and is the
// single entry point for every event that mutates a room. Events for
// one room are serialized by that room's mutex; different rooms proceed
// independently. The registry maps are the only cross-room shared state
// and are guarded by roomsMu, held only for O(1) lookups and never
// across a timer wait or an external call.
type GameManager struct {
	PlayerSessions *PlayerSessions

	roomsMu   sync.RWMutex
	rooms     map[string]*Room
	roomOrder []string

	notifier Notifier
	oracle   EscrowOracle
	cfg      Config

	Log slog.Logger
}

func NewGameManager(cfg Config, notifier Notifier, oracle EscrowOracle, log slog.Logger) *GameManager {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.RemoveGrace <= 0 {
		cfg.RemoveGrace = 30 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = time.Minute
	}
	if oracle == nil {
		oracle = NoopOracle{}
	}
	return &GameManager{
		PlayerSessions: &PlayerSessions{Sessions: make(map[string]*Session)},
		rooms:          make(map[string]*Room),
		notifier:       notifier,
		oracle:         oracle,
		cfg:            cfg,
		Log:            log,
	}
}

// AddSession registers a freshly connected peer.
func (gm *GameManager) AddSession(connID string) {
	gm.PlayerSessions.CreateSession(connID)
}

// HandleDisconnect translates a transport-level disconnect into a leave
// when the connection holds a room binding, then drops the session.
func (gm *GameManager) HandleDisconnect(connID string) {
	gm.LeaveRoom(connID)
	gm.PlayerSessions.RemoveSession(connID)
}

func (gm *GameManager) getRoom(roomID string) *Room {
	gm.roomsMu.RLock()
	defer gm.roomsMu.RUnlock()
	return gm.rooms[roomID]
}

// roomBySession resolves the room the connection currently belongs to.
func (gm *GameManager) roomBySession(connID string) *Room {
	roomID := gm.PlayerSessions.RoomID(connID)
	if roomID == "" {
		return nil
	}
	return gm.getRoom(roomID)
}

// WaitingRooms snapshots all rooms still waiting for an opponent, in
// insertion order so clients can diff the lobby list stably.
func (gm *GameManager) WaitingRooms() []*RoomState {
	gm.roomsMu.RLock()
	rooms := make([]*Room, 0, len(gm.roomOrder))
	for _, id := range gm.roomOrder {
		if r := gm.rooms[id]; r != nil {
			rooms = append(rooms, r)
		}
	}
	gm.roomsMu.RUnlock()

	out := make([]*RoomState, 0, len(rooms))
	for _, r := range rooms {
		st := r.Marshal()
		if st.Status == StatusWaiting {
			out = append(out, st)
		}
	}
	return out
}

func (gm *GameManager) broadcastRoomsList() {
	gm.notifier.Broadcast(Ntfn{Event: EvtRoomsList, Data: gm.WaitingRooms()})
}

func (gm *GameManager) notifyRoom(occupants []string, ntfn Ntfn) {
	for _, id := range occupants {
		gm.notifier.Notify(id, ntfn)
	}
}

// CreateRoom allocates a fresh room with the host seated in slot 1 and
// binds the host's session to it.
func (gm *GameManager) CreateRoom(connID, name, playerName, walletRef string, stake float64) (*RoomState, *Player, error) {
	if stake < 0 {
		return nil, nil, fmt.Errorf("stake must not be negative")
	}
	if gm.PlayerSessions.RoomID(connID) != "" {
		return nil, nil, fmt.Errorf("player %s is already in a room", connID)
	}

	host := &Player{ID: connID, Name: playerName, WalletRef: walletRef}
	room, err := newRoom(name, host, stake, gm.cfg.StakingEnabled)
	if err != nil {
		return nil, nil, err
	}

	gm.roomsMu.Lock()
	gm.rooms[room.ID] = room
	gm.roomOrder = append(gm.roomOrder, room.ID)
	total := len(gm.rooms)
	gm.roomsMu.Unlock()

	gm.PlayerSessions.BindRoom(connID, room.ID)
	gm.Log.Debugf("room %s created by %s. Total rooms: %d", room.ID, connID, total)

	state := room.Marshal()
	player := *host
	gm.notifier.Notify(connID, Ntfn{Event: EvtRoomJoined, Data: &JoinedPayload{Room: state, Player: &player}})
	gm.broadcastRoomsList()
	return state, &player, nil
}

// JoinRoom seats the joiner in slot 2 and advances the room to ready,
// or to betConfirmation when a stake is escrowed first.
func (gm *GameManager) JoinRoom(connID, roomID, playerName, walletRef string) (*RoomState, *Player, error) {
	if gm.PlayerSessions.RoomID(connID) != "" {
		return nil, nil, fmt.Errorf("player %s is already in a room", connID)
	}
	room := gm.getRoom(roomID)
	if room == nil {
		return nil, nil, ErrRoomUnavailable
	}

	joiner := &Player{ID: connID, Name: playerName, WalletRef: walletRef}

	room.Lock()
	if room.removed || room.Status != StatusWaiting || room.Player2 != nil || room.Player1 == nil {
		room.Unlock()
		return nil, nil, ErrRoomUnavailable
	}
	room.Player2 = joiner
	if room.staked {
		room.Status = StatusBetConfirmation
	} else {
		room.Status = StatusReady
	}
	staked := room.staked
	stake := room.Stake
	state := room.marshalLocked()
	occupants := room.occupantIDsLocked()
	room.Unlock()

	gm.PlayerSessions.BindRoom(connID, roomID)
	gm.Log.Debugf("player %s joined room %s", connID, roomID)

	player := *joiner
	gm.notifier.Notify(connID, Ntfn{Event: EvtRoomJoined, Data: &JoinedPayload{Room: state, Player: &player}})
	gm.notifyRoom(occupants, Ntfn{Event: EvtRoomUpdated, Data: state})
	if staked {
		gm.notifyRoom(occupants, Ntfn{Event: EvtBetRequired, Data: stake})
	}
	gm.broadcastRoomsList()
	return state, &player, nil
}

// LeaveRoom removes the connection's player from its room. A departing
// host with an opponent promotes the opponent to slot 1; a sole
// occupant leaving deletes the room. It returns the surviving room
// snapshot, or nil if the room was deleted or the connection had none.
func (gm *GameManager) LeaveRoom(connID string) *RoomState {
	room := gm.roomBySession(connID)
	gm.PlayerSessions.BindRoom(connID, "")
	if room == nil {
		return nil
	}

	room.Lock()
	if room.removed {
		room.Unlock()
		return nil
	}
	var survivor *Player
	switch {
	case room.Player1 != nil && room.Player1.ID == connID:
		survivor = room.Player2
	case room.Player2 != nil && room.Player2.ID == connID:
		survivor = room.Player1
	default:
		// Stale binding; nothing seated for this connection.
		room.Unlock()
		return nil
	}

	if survivor == nil {
		// Sole occupant left; the room goes away entirely. The removal
		// happens under the room lock so a join that already resolved
		// this room cannot seat a player into the ghost.
		room.timerGen++
		gm.removeRoomLocked(room)
		room.Unlock()
		gm.Log.Debugf("room %s removed (last player %s left)", room.ID, connID)
		gm.broadcastRoomsList()
		return nil
	}

	room.resetToWaitingLocked(survivor)
	state := room.marshalLocked()
	room.Unlock()

	gm.Log.Debugf("player %s left room %s; reverting to waiting", connID, room.ID)
	gm.notifier.Notify(survivor.ID, Ntfn{Event: EvtRoomUpdated, Data: state})
	gm.broadcastRoomsList()
	return state
}

// removeRoomLocked deletes the room from the registry and cancels its
// context so armed timers stop ticking. The caller holds the room
// lock, which makes the deletion atomic with whatever check justified
// it; the lock order is always room lock before roomsMu.
func (gm *GameManager) removeRoomLocked(room *Room) {
	room.removed = true
	room.Cancel()
	gm.roomsMu.Lock()
	delete(gm.rooms, room.ID)
	for i, id := range gm.roomOrder {
		if id == room.ID {
			gm.roomOrder = append(gm.roomOrder[:i], gm.roomOrder[i+1:]...)
			break
		}
	}
	gm.roomsMu.Unlock()
}

// ToggleReady flips the caller's ready flag. Outside the ready phase
// the event is swallowed. When both players are ready the countdown
// starts.
func (gm *GameManager) ToggleReady(connID string) {
	room := gm.roomBySession(connID)
	if room == nil {
		return
	}

	room.Lock()
	if room.Status != StatusReady {
		room.Unlock()
		return
	}
	player := room.playerLocked(connID)
	if player == nil {
		room.Unlock()
		return
	}
	player.Ready = !player.Ready

	if room.Player1 != nil && room.Player2 != nil && room.Player1.Ready && room.Player2.Ready {
		room.Status = StatusCountdown
		room.Countdown = DefaultCountdown
		gm.armTimerLocked(room, StatusCountdown)
	}
	state := room.marshalLocked()
	occupants := room.occupantIDsLocked()
	room.Unlock()

	gm.notifyRoom(occupants, Ntfn{Event: EvtRoomUpdated, Data: state})
}

// Click counts one click for the seated caller while the match clock is
// running; anything else is ignored.
func (gm *GameManager) Click(connID string) {
	room := gm.roomBySession(connID)
	if room == nil {
		return
	}

	room.Lock()
	if room.Status != StatusPlaying {
		room.Unlock()
		return
	}
	player := room.playerLocked(connID)
	if player == nil {
		room.Unlock()
		return
	}
	player.Clicks++
	clicks := player.Clicks
	state := room.marshalLocked()
	occupants := room.occupantIDsLocked()
	room.Unlock()

	gm.notifyRoom(occupants, Ntfn{Event: EvtPlayerClick, Data: &ClickPayload{PlayerID: connID, Clicks: clicks}})
	gm.notifyRoom(occupants, Ntfn{Event: EvtRoomUpdated, Data: state})
}

// ConfirmBet verifies the caller's stake proof against the escrow
// oracle. The oracle round-trip runs outside the room lock; its result
// re-enters the serialized per-room path in applyBetResult. A
// confirmation while the room is not awaiting bets is a no-op.
func (gm *GameManager) ConfirmBet(connID, signature string) {
	room := gm.roomBySession(connID)
	if room == nil {
		return
	}

	room.Lock()
	if room.Status != StatusBetConfirmation || room.playerLocked(connID) == nil {
		room.Unlock()
		return
	}
	room.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(room.Ctx, gm.cfg.ConfirmTimeout)
		defer cancel()
		err := gm.oracle.ConfirmDeposit(ctx, signature)
		gm.applyBetResult(room, connID, signature, err)
	}()
}

func (gm *GameManager) applyBetResult(room *Room, connID, signature string, err error) {
	if err != nil {
		gm.Log.Warnf("escrow confirmation failed for %s in room %s: %v", connID, room.ID, err)
		gm.notifier.Notify(connID, Ntfn{Event: EvtError, Data: ErrEscrowFailure.Error()})
		return
	}

	room.Lock()
	if room.Status != StatusBetConfirmation {
		room.Unlock()
		return
	}
	player := room.playerLocked(connID)
	if player == nil {
		room.Unlock()
		return
	}
	player.StakePaid = true
	player.EscrowRef = signature

	if room.Player1 != nil && room.Player2 != nil && room.Player1.StakePaid && room.Player2.StakePaid {
		room.Status = StatusReady
		room.TotalPot = 2 * room.Stake
	}
	state := room.marshalLocked()
	occupants := room.occupantIDsLocked()
	room.Unlock()

	gm.Log.Debugf("bet confirmed for %s in room %s", connID, room.ID)
	gm.notifyRoom(occupants, Ntfn{Event: EvtBetConfirmed, Data: connID})
	gm.notifyRoom(occupants, Ntfn{Event: EvtRoomUpdated, Data: state})
}

// ClaimWinnings releases the pot to the recorded winner. The claim is
// accepted only while the room is in payout and only from the
// connection whose seated name equals the winner.
func (gm *GameManager) ClaimWinnings(connID string) error {
	room := gm.roomBySession(connID)
	if room == nil {
		return ErrRoomUnavailable
	}

	room.Lock()
	if room.Status != StatusPayout {
		room.Unlock()
		return ErrUnauthorized
	}
	player := room.playerLocked(connID)
	if player == nil || player.Name != room.Winner {
		room.Unlock()
		return ErrUnauthorized
	}
	room.Status = StatusFinished
	amount := room.Payout
	walletRef := player.WalletRef
	state := room.marshalLocked()
	occupants := room.occupantIDsLocked()
	gm.scheduleRemovalLocked(room)
	room.Unlock()

	gm.Log.Infof("winnings claimed by %s in room %s: %.4f", connID, room.ID, amount)

	// Fire-and-forget: the transfer itself is the payment oracle's
	// problem; the room completes optimistically.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), gm.cfg.ConfirmTimeout)
		defer cancel()
		if err := gm.oracle.ReleasePayout(ctx, walletRef, amount); err != nil {
			gm.Log.Errorf("payout release for room %s failed: %v", room.ID, err)
		}
	}()

	gm.notifyRoom(occupants, Ntfn{Event: EvtRoomUpdated, Data: state})
	return nil
}

// Shutdown cancels every room context so all timer goroutines stop,
// then clears the registry.
func (gm *GameManager) Shutdown() {
	gm.roomsMu.Lock()
	for _, room := range gm.rooms {
		room.Cancel()
	}
	gm.rooms = make(map[string]*Room)
	gm.roomOrder = nil
	gm.roomsMu.Unlock()
}
