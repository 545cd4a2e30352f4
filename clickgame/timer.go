package clickgame

import "time"

// A room has at most one active timer: the countdown while status is
// countdown, the match clock while status is playing. Arming bumps the
// room's timer generation, which invalidates whatever was ticking
// before; each tick re-checks generation and status under the room
// lock before applying, so a cancelled timer's late tick is discarded
// instead of mutating a reseated or deleted room.

func (gm *GameManager) armTimerLocked(room *Room, phase Status) {
	room.timerGen++
	gen := room.timerGen
	tick := gm.countdownTick
	if phase == StatusPlaying {
		tick = gm.matchTick
	}
	go gm.runTimer(room, gen, tick)
}

func (gm *GameManager) runTimer(room *Room, gen uint64, tick func(*Room, uint64) bool) {
	t := time.NewTicker(gm.cfg.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-room.Ctx.Done():
			return
		case <-t.C:
			if !tick(room, gen) {
				return
			}
		}
	}
}

// countdownTick applies one countdown decrement. Returns false once the
// timer must stop ticking.
func (gm *GameManager) countdownTick(room *Room, gen uint64) bool {
	room.Lock()
	if room.timerGen != gen || room.Status != StatusCountdown {
		room.Unlock()
		gm.Log.Debugf("discarding stale countdown tick for room %s", room.ID)
		return false
	}
	room.Countdown--
	countdown := room.Countdown
	if countdown > 0 {
		occupants := room.occupantIDsLocked()
		room.Unlock()
		gm.notifyRoom(occupants, Ntfn{Event: EvtRoomCountdown, Data: countdown})
		return true
	}

	// Countdown reached zero: the match clock takes over.
	room.Countdown = 0
	room.Status = StatusPlaying
	room.GameTime = DefaultGameTime
	gm.armTimerLocked(room, StatusPlaying)
	state := room.marshalLocked()
	occupants := room.occupantIDsLocked()
	room.Unlock()

	gm.Log.Debugf("room %s countdown finished; match started", room.ID)
	gm.notifyRoom(occupants, Ntfn{Event: EvtRoomCountdown, Data: 0})
	gm.notifyRoom(occupants, Ntfn{Event: EvtGameStart})
	gm.notifyRoom(occupants, Ntfn{Event: EvtRoomUpdated, Data: state})
	return false
}

// matchTick applies one match clock decrement and finishes the match
// when the clock expires.
func (gm *GameManager) matchTick(room *Room, gen uint64) bool {
	room.Lock()
	if room.timerGen != gen || room.Status != StatusPlaying {
		room.Unlock()
		gm.Log.Debugf("discarding stale match tick for room %s", room.ID)
		return false
	}
	room.GameTime--
	if room.GameTime > 0 {
		state := room.marshalLocked()
		occupants := room.occupantIDsLocked()
		room.Unlock()
		gm.notifyRoom(occupants, Ntfn{Event: EvtRoomUpdated, Data: state})
		return true
	}

	room.GameTime = 0
	room.Status = StatusFinished
	room.Winner = computeWinner(room.Player1, room.Player2)
	winner := room.Winner

	strict := winner != WinnerTie && winner != WinnerNone
	payout := false
	var amount float64
	if room.staked && strict {
		room.Status = StatusPayout
		room.Payout = room.TotalPot * (1 - FeeFraction)
		amount = room.Payout
		payout = true
		room.timerGen++
	} else {
		// Nothing to claim; linger briefly, then expire. The schedule
		// bumps the generation, which also cancels this match timer.
		gm.scheduleRemovalLocked(room)
	}
	state := room.marshalLocked()
	occupants := room.occupantIDsLocked()
	room.Unlock()

	gm.Log.Infof("room %s match finished; winner: %s", room.ID, winner)
	if payout {
		gm.notifyRoom(occupants, Ntfn{Event: EvtPayoutReady, Data: &PayoutPayload{Winner: winner, Amount: amount}})
	}
	gm.notifyRoom(occupants, Ntfn{Event: EvtGameEnd, Data: winner})
	gm.notifyRoom(occupants, Ntfn{Event: EvtRoomUpdated, Data: state})
	return false
}

// scheduleRemovalLocked queues the room for deletion after the grace
// period. The captured generation lets an intervening leave or rematch
// veto the removal.
func (gm *GameManager) scheduleRemovalLocked(room *Room) {
	room.timerGen++
	gen := room.timerGen
	time.AfterFunc(gm.cfg.RemoveGrace, func() { gm.removeAfterGrace(room, gen) })
}

func (gm *GameManager) removeAfterGrace(room *Room, gen uint64) {
	room.Lock()
	if room.timerGen != gen || room.Status != StatusFinished {
		room.Unlock()
		return
	}
	// Deletion stays under the room lock: a leave that resets the room
	// to waiting either ran before this check and vetoed it via the
	// generation, or blocks until the room is marked removed.
	gm.removeRoomLocked(room)
	room.Unlock()
	gm.Log.Debugf("room %s removed after grace period", room.ID)
}
