package server

import "encoding/json"

// Inbound event names. Outbound names live in clickgame so the state
// machine can push without knowing about the transport.
const (
	evtRoomsGet      = "rooms:get"
	evtRoomCreate    = "room:create"
	evtRoomJoin      = "room:join"
	evtConfirmBet    = "room:confirm-bet"
	evtPlayerReady   = "player:ready"
	evtPlayerClick   = "player:click"
	evtClaimWinnings = "room:claim-winnings"
	evtRoomLeave     = "room:leave"
)

// inboundMsg is the envelope of every client frame.
type inboundMsg struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type createRoomReq struct {
	Name       string  `json:"name"`
	PlayerName string  `json:"playerName"`
	WalletRef  string  `json:"walletRef"`
	Stake      float64 `json:"stake"`
}

type joinRoomReq struct {
	RoomID     string `json:"roomId"`
	PlayerName string `json:"playerName"`
	WalletRef  string `json:"walletRef"`
}

type confirmBetReq struct {
	Signature string `json:"signature"`
}
