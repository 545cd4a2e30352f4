package clickgame

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeWinner(t *testing.T) {
	tests := []struct {
		name string
		p1   *Player
		p2   *Player
		want string
	}{
		{"player1 wins", &Player{Name: "alice", Clicks: 5}, &Player{Name: "bob", Clicks: 3}, "alice"},
		{"player2 wins", &Player{Name: "alice", Clicks: 2}, &Player{Name: "bob", Clicks: 9}, "bob"},
		{"equal non-zero", &Player{Name: "alice", Clicks: 4}, &Player{Name: "bob", Clicks: 4}, WinnerTie},
		{"equal zero", &Player{Name: "alice"}, &Player{Name: "bob"}, WinnerTie},
		{"missing player2", &Player{Name: "alice", Clicks: 1}, nil, WinnerNone},
		{"missing player1", nil, &Player{Name: "bob", Clicks: 1}, WinnerNone},
		{"both missing", nil, nil, WinnerNone},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, computeWinner(tc.p1, tc.p2))
		})
	}
}

func TestNewRoomID(t *testing.T) {
	id1, err := newRoomID()
	require.NoError(t, err)
	id2, err := newRoomID()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(id1, "room_"))
	assert.NotEqual(t, id1, id2)
}

func TestRoomMarshalCopiesPlayers(t *testing.T) {
	host := &Player{ID: "c1", Name: "alice"}
	room, err := newRoom("test", host, 0, false)
	require.NoError(t, err)
	defer room.Cancel()

	st := room.Marshal()
	require.NotNil(t, st.Player1)
	assert.Nil(t, st.Player2)
	assert.Equal(t, StatusWaiting, st.Status)
	assert.Equal(t, DefaultCountdown, st.Countdown)
	assert.Equal(t, DefaultGameTime, st.GameTime)

	// Mutating the snapshot must not reach the seated player.
	st.Player1.Clicks = 99
	assert.Equal(t, 0, host.Clicks)
}

func TestRoomStakedOnlyWithPositiveStake(t *testing.T) {
	host := &Player{ID: "c1", Name: "alice"}

	r1, err := newRoom("free", host, 0, true)
	require.NoError(t, err)
	defer r1.Cancel()
	assert.False(t, r1.staked)

	r2, err := newRoom("staked", &Player{ID: "c2"}, 1.5, true)
	require.NoError(t, err)
	defer r2.Cancel()
	assert.True(t, r2.staked)

	r3, err := newRoom("staking disabled", &Player{ID: "c3"}, 1.5, false)
	require.NoError(t, err)
	defer r3.Cancel()
	assert.False(t, r3.staked)
}

func TestResetToWaitingClearsMatchState(t *testing.T) {
	host := &Player{ID: "c1", Name: "alice"}
	room, err := newRoom("test", host, 1, true)
	require.NoError(t, err)
	defer room.Cancel()

	survivor := &Player{ID: "c2", Name: "bob", Clicks: 7, Ready: true, StakePaid: true, EscrowRef: "sig"}
	room.Lock()
	room.Player2 = survivor
	room.Status = StatusPlaying
	room.TotalPot = 2
	room.Winner = "bob"
	gen := room.timerGen
	room.resetToWaitingLocked(survivor)
	room.Unlock()

	assert.Equal(t, StatusWaiting, room.Status)
	assert.Same(t, survivor, room.Player1)
	assert.Nil(t, room.Player2)
	assert.Equal(t, 0, survivor.Clicks)
	assert.False(t, survivor.Ready)
	assert.False(t, survivor.StakePaid)
	assert.Empty(t, survivor.EscrowRef)
	assert.Zero(t, room.TotalPot)
	assert.Empty(t, room.Winner)
	assert.Greater(t, room.timerGen, gen)
}
