// state/lobby_state.go
package state

import (
	"github.com/google/uuid"

	"github.com/CodingInCarhartts/yum-osu/logger"
)

// LobbyState accepts join/leave/ready changes. The only way out is the
// host starting the match with every member ready and at least two
// members present.
type LobbyState struct {
	RoomStateBase
}

func NewLobbyState(room RoomContext) *LobbyState {
	return &LobbyState{
		RoomStateBase: RoomStateBase{
			ID:   StateLobby,
			Room: room,
		},
	}
}

// Start validates the ready-up gate and moves the room to Starting. The
// whole check-and-transition runs before any broadcast, so a refused start
// has no side effects.
func (s *LobbyState) Start(requester uuid.UUID) error {
	if requester != s.Room.GetHostID() {
		return ErrNotHost
	}

	players := s.Room.GetPlayerInfos()
	if len(players) < 2 {
		return ErrInsufficientPlayers
	}
	for _, p := range players {
		if !p.Ready {
			return ErrNotAllReady
		}
	}

	starting, err := NewStartingState(s.Room)
	if err != nil {
		return err
	}
	if err := s.Room.ChangeState(starting); err != nil {
		return err
	}
	logger.Log.Infof("room %s: match starting with %d players", s.Room.GetID(), len(players))
	return nil
}
