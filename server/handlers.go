package server

import (
	"encoding/json"

	"github.com/mnm89/solana-games/clickgame"
)

// dispatch routes one inbound frame to the game manager. Errors from
// retryable user actions go back to the originating connection only;
// everything else is swallowed by the manager as a no-op.
func (s *Server) dispatch(connID string, raw []byte) {
	var msg inboundMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendError(connID, "malformed message")
		return
	}

	switch msg.Event {
	case evtRoomsGet:
		s.hub.Notify(connID, clickgame.Ntfn{Event: clickgame.EvtRoomsList, Data: s.gameManager.WaitingRooms()})

	case evtRoomCreate:
		var req createRoomReq
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.sendError(connID, "malformed room:create payload")
			return
		}
		if _, _, err := s.gameManager.CreateRoom(connID, req.Name, req.PlayerName, req.WalletRef, req.Stake); err != nil {
			s.sendError(connID, err.Error())
		}

	case evtRoomJoin:
		var req joinRoomReq
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.sendError(connID, "malformed room:join payload")
			return
		}
		if _, _, err := s.gameManager.JoinRoom(connID, req.RoomID, req.PlayerName, req.WalletRef); err != nil {
			s.sendError(connID, err.Error())
		}

	case evtConfirmBet:
		var req confirmBetReq
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.sendError(connID, "malformed room:confirm-bet payload")
			return
		}
		s.gameManager.ConfirmBet(connID, req.Signature)

	case evtPlayerReady:
		s.gameManager.ToggleReady(connID)

	case evtPlayerClick:
		s.gameManager.Click(connID)

	case evtClaimWinnings:
		if err := s.gameManager.ClaimWinnings(connID); err != nil {
			s.sendError(connID, err.Error())
		}

	case evtRoomLeave:
		s.gameManager.LeaveRoom(connID)

	default:
		s.log.Debugf("unknown event %q from %s", msg.Event, connID)
	}
}

func (s *Server) sendError(connID, message string) {
	s.hub.Notify(connID, clickgame.Ntfn{Event: clickgame.EvtError, Data: message})
}
