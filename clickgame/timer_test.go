package clickgame

import (
	"sync"
	"testing"
	"time"

	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Full lifecycle on real timers with a millisecond tick.
func TestRealTimerLifecycle(t *testing.T) {
	rec := &recorder{}
	gm := NewGameManager(Config{
		TickInterval: time.Millisecond,
		RemoveGrace:  time.Hour,
	}, rec, NoopOracle{}, slog.Disabled)
	gm.AddSession("c1")
	gm.AddSession("c2")

	st, _, err := gm.CreateRoom("c1", "fast", "alice", "", 0)
	require.NoError(t, err)
	_, _, err = gm.JoinRoom("c2", st.ID, "bob", "")
	require.NoError(t, err)
	room := gm.getRoom(st.ID)

	gm.ToggleReady("c1")
	gm.ToggleReady("c2")

	require.Eventually(t, func() bool {
		return room.Marshal().Status == StatusPlaying
	}, 5*time.Second, time.Millisecond)

	gm.Click("c2")

	require.Eventually(t, func() bool {
		return room.Marshal().Status == StatusFinished
	}, 5*time.Second, time.Millisecond)

	cur := room.Marshal()
	assert.Equal(t, "bob", cur.Winner)
	assert.Equal(t, 0, cur.GameTime)
	require.NotEmpty(t, rec.byEvent(EvtGameStart))
	require.NotEmpty(t, rec.byEvent(EvtGameEnd))
}

// A tick carrying an outdated generation must not mutate the room.
func TestStaleTickDiscarded(t *testing.T) {
	gm, _ := newTestManager(false)

	st, _, err := gm.CreateRoom("c1", "my room", "alice", "", 0)
	require.NoError(t, err)
	_, _, err = gm.JoinRoom("c2", st.ID, "bob", "")
	require.NoError(t, err)
	room := gm.getRoom(st.ID)

	gm.ToggleReady("c1")
	gm.ToggleReady("c2")
	staleGen := roomGen(room)

	// Bob leaves mid-countdown; the reset bumps the generation.
	gm.LeaveRoom("c2")
	require.Equal(t, StatusWaiting, room.Marshal().Status)

	applied := gm.countdownTick(room, staleGen)
	assert.False(t, applied, "stale tick must stop its timer")
	cur := room.Marshal()
	assert.Equal(t, StatusWaiting, cur.Status)
	assert.Equal(t, DefaultCountdown, cur.Countdown)
}

// A tick armed for one phase is dead once the room is in another phase,
// even at the same generation value.
func TestTickRequiresMatchingStatus(t *testing.T) {
	gm, _ := newTestManager(false)

	st, _, err := gm.CreateRoom("c1", "my room", "alice", "", 0)
	require.NoError(t, err)
	_, _, err = gm.JoinRoom("c2", st.ID, "bob", "")
	require.NoError(t, err)
	room := gm.getRoom(st.ID)

	gm.ToggleReady("c1")
	gm.ToggleReady("c2")

	// Match ticks against a countdown room are discarded.
	applied := gm.matchTick(room, roomGen(room))
	assert.False(t, applied)
	assert.Equal(t, StatusCountdown, room.Marshal().Status)
	assert.Equal(t, DefaultGameTime, room.Marshal().GameTime)
}

func TestGraceRemovalExpiresFinishedRoom(t *testing.T) {
	rec := &recorder{}
	gm := NewGameManager(Config{
		TickInterval: time.Hour,
		RemoveGrace:  10 * time.Millisecond,
	}, rec, NoopOracle{}, slog.Disabled)
	gm.AddSession("c1")
	gm.AddSession("c2")

	st, _, err := gm.CreateRoom("c1", "my room", "alice", "", 0)
	require.NoError(t, err)
	_, _, err = gm.JoinRoom("c2", st.ID, "bob", "")
	require.NoError(t, err)
	room := gm.getRoom(st.ID)

	gm.ToggleReady("c1")
	gm.ToggleReady("c2")
	runCountdownTicks(gm, room)
	runMatchTicks(gm, room)
	require.Equal(t, StatusFinished, room.Marshal().Status)

	require.Eventually(t, func() bool {
		return gm.getRoom(st.ID) == nil
	}, time.Second, 5*time.Millisecond)
}

// A leave during the grace window vetoes the queued removal.
func TestGraceRemovalVetoedByReset(t *testing.T) {
	rec := &recorder{}
	gm := NewGameManager(Config{
		TickInterval: time.Hour,
		RemoveGrace:  25 * time.Millisecond,
	}, rec, NoopOracle{}, slog.Disabled)
	gm.AddSession("c1")
	gm.AddSession("c2")

	st, _, err := gm.CreateRoom("c1", "my room", "alice", "", 0)
	require.NoError(t, err)
	_, _, err = gm.JoinRoom("c2", st.ID, "bob", "")
	require.NoError(t, err)
	room := gm.getRoom(st.ID)

	gm.ToggleReady("c1")
	gm.ToggleReady("c2")
	runCountdownTicks(gm, room)
	runMatchTicks(gm, room)
	require.Equal(t, StatusFinished, room.Marshal().Status)

	// Bob bails before the grace period elapses; the room reverts to
	// waiting and must stay registered.
	gm.LeaveRoom("c2")
	require.Equal(t, StatusWaiting, room.Marshal().Status)

	time.Sleep(60 * time.Millisecond)
	assert.NotNil(t, gm.getRoom(st.ID))
	require.Len(t, gm.WaitingRooms(), 1)
}

// A leave racing the queued removal must resolve one of two ways: the
// leave wins and the room survives in waiting, or the removal wins and
// the leave finds nothing. A leave that is applied and then wiped out
// by the removal would strand the survivor.
func TestGraceRemovalAtomicWithLeave(t *testing.T) {
	for i := 0; i < 200; i++ {
		gm, _ := newTestManager(false)

		st, _, err := gm.CreateRoom("c1", "my room", "alice", "", 0)
		require.NoError(t, err)
		_, _, err = gm.JoinRoom("c2", st.ID, "bob", "")
		require.NoError(t, err)
		room := gm.getRoom(st.ID)

		gm.ToggleReady("c1")
		gm.ToggleReady("c2")
		runCountdownTicks(gm, room)
		runMatchTicks(gm, room)
		require.Equal(t, StatusFinished, room.Marshal().Status)

		gen := roomGen(room)
		var wg sync.WaitGroup
		var surviving *RoomState
		wg.Add(2)
		go func() {
			defer wg.Done()
			gm.removeAfterGrace(room, gen)
		}()
		go func() {
			defer wg.Done()
			surviving = gm.LeaveRoom("c2")
		}()
		wg.Wait()

		if surviving != nil {
			assert.Equal(t, StatusWaiting, surviving.Status)
			require.NotNil(t, gm.getRoom(st.ID),
				"room deleted out from under the surviving player")
		} else {
			require.Nil(t, gm.getRoom(st.ID))
		}
	}
}

func TestShutdownCancelsRoomContexts(t *testing.T) {
	gm, _ := newTestManager(false)

	st, _, err := gm.CreateRoom("c1", "my room", "alice", "", 0)
	require.NoError(t, err)
	room := gm.getRoom(st.ID)

	gm.Shutdown()

	select {
	case <-room.Ctx.Done():
	default:
		t.Fatal("room context still live after shutdown")
	}
	assert.Nil(t, gm.getRoom(st.ID))
}
