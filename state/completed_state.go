// state/completed_state.go
package state

import (
	"github.com/google/uuid"

	"github.com/CodingInCarhartts/yum-osu/logger"
	"github.com/CodingInCarhartts/yum-osu/network"
)

// CompletedState publishes the final ranking exactly once, hands the
// results to the composition root, then reverts the room to the lobby so
// it can be replayed.
type CompletedState struct {
	RoomStateBase
	results  []PlayerResult
	reverted bool
}

func NewCompletedState(room RoomContext, results []PlayerResult) *CompletedState {
	return &CompletedState{
		RoomStateBase: RoomStateBase{
			ID:   StateCompleted,
			Room: room,
		},
		results: results,
	}
}

// Results returns the authoritative final ranking.
func (s *CompletedState) Results() []PlayerResult {
	return s.results
}

func (s *CompletedState) OnEnter() {
	end := network.MatchEnd{RoomID: s.Room.GetID()}
	for _, r := range s.results {
		end.Ranking = append(end.Ranking, network.RankedPlayer{
			Rank:     r.Rank,
			UserID:   r.UserID,
			Username: r.Username,
			Score:    r.Score,
			Accuracy: r.Accuracy,
			MaxCombo: r.MaxCombo,
		})
	}
	if len(s.results) > 0 {
		end.WinnerID = s.results[0].UserID
	}

	if err := s.Room.Broadcast(network.MustEnvelope(network.KindMatchEnd, end)); err != nil {
		logger.Log.Warnf("room %s: match end broadcast failed: %v", s.Room.GetID(), err)
	}
	s.Room.FinishMatch(s.results)
	logger.Log.Infof("room %s: match completed, winner %s", s.Room.GetID(), end.WinnerID)
}

// OnUpdate reverts to the lobby on the next tick, giving clients one tick
// in which the room reads as completed.
func (s *CompletedState) OnUpdate() {
	if s.reverted {
		return
	}
	s.reverted = true
	s.Room.ResetForLobby()
	if err := s.Room.ChangeState(NewLobbyState(s.Room)); err != nil {
		logger.Log.Errorf("room %s: could not revert to lobby: %v", s.Room.GetID(), err)
	}
}

func (s *CompletedState) HandleEvent(playerID uuid.UUID, ev *MatchEvent) error {
	return ErrNoMatchRunning
}
