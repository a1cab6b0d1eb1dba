// state/starting_state.go
package state

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/google/uuid"

	"github.com/CodingInCarhartts/yum-osu/logger"
	"github.com/CodingInCarhartts/yum-osu/network"
)

// StartingState broadcasts the shared seed and countdown, then hands over
// to PlayingState once the countdown elapses. Membership is frozen; the
// room refuses joins while the machine is out of the lobby.
type StartingState struct {
	RoomStateBase
	seedValue uint64
	remaining time.Duration
}

func NewStartingState(room RoomContext) (*StartingState, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, err
	}
	return &StartingState{
		RoomStateBase: RoomStateBase{
			ID:   StateStarting,
			Room: room,
		},
		seedValue: binary.BigEndian.Uint64(buf[:]),
		remaining: room.GetMatchConfig().Countdown,
	}, nil
}

// Seed is the deterministic seed every client derives circle timing from.
func (s *StartingState) Seed() uint64 {
	return s.seedValue
}

func (s *StartingState) OnEnter() {
	payload := network.StartGame{
		RoomID:      s.Room.GetID(),
		Seed:        s.seedValue,
		CountdownMS: s.remaining.Milliseconds(),
		Song:        s.Room.GetSong(),
	}
	if err := s.Room.Broadcast(network.MustEnvelope(network.KindStartGame, payload)); err != nil {
		logger.Log.Warnf("room %s: start broadcast failed: %v", s.Room.GetID(), err)
	}
}

func (s *StartingState) OnUpdate() {
	s.remaining -= s.Room.GetMatchConfig().TickInterval
	if s.remaining > 0 {
		return
	}
	if err := s.Room.ChangeState(NewPlayingState(s.Room)); err != nil {
		logger.Log.Errorf("room %s: could not enter playing state: %v", s.Room.GetID(), err)
	}
}

func (s *StartingState) HandleEvent(playerID uuid.UUID, ev *MatchEvent) error {
	// Events sent during the countdown are early, not fatal.
	return ErrNoMatchRunning
}
