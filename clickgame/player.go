package clickgame

import "sync"

// Player is one seated participant. It is owned exclusively by the room
// that contains it; the id is the owning connection's session id.
type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Clicks    int    `json:"clicks"`
	Ready     bool   `json:"isReady"`
	StakePaid bool   `json:"stakePaid"`

	// WalletRef is the payout destination reported on create/join and
	// EscrowRef the deposit proof recorded on bet confirmation. Neither
	// is sent back over the wire.
	WalletRef string `json:"-"`
	EscrowRef string `json:"-"`
}

// Session binds a live connection to at most one room. RoomID is the
// sole source of truth for which room a connection belongs to.
type Session struct {
	ConnID string
	RoomID string
}

type PlayerSessions struct {
	sync.RWMutex
	Sessions map[string]*Session
}

func (ps *PlayerSessions) CreateSession(connID string) *Session {
	ps.Lock()
	defer ps.Unlock()

	sess := ps.Sessions[connID]
	if sess == nil {
		sess = &Session{ConnID: connID}
		ps.Sessions[connID] = sess
	}
	return sess
}

func (ps *PlayerSessions) GetSession(connID string) *Session {
	ps.RLock()
	defer ps.RUnlock()
	return ps.Sessions[connID]
}

func (ps *PlayerSessions) RemoveSession(connID string) {
	ps.Lock()
	defer ps.Unlock()
	delete(ps.Sessions, connID)
}

// BindRoom records the connection's room membership, creating the
// session if the connection is unknown.
func (ps *PlayerSessions) BindRoom(connID, roomID string) {
	ps.Lock()
	defer ps.Unlock()
	sess := ps.Sessions[connID]
	if sess == nil {
		sess = &Session{ConnID: connID}
		ps.Sessions[connID] = sess
	}
	sess.RoomID = roomID
}

// RoomID returns the bound room id for connID, or empty.
func (ps *PlayerSessions) RoomID(connID string) string {
	ps.RLock()
	defer ps.RUnlock()
	if sess := ps.Sessions[connID]; sess != nil {
		return sess.RoomID
	}
	return ""
}
