// state/interfaces.go
package state

import (
	"time"

	"github.com/google/uuid"

	"github.com/CodingInCarhartts/yum-osu/network"
)

// PlayerInfo is the view of one room member a state needs: identity,
// readiness and whether the connection is currently live.
type PlayerInfo struct {
	UserID    uuid.UUID
	Username  string
	Ready     bool
	Connected bool
}

// MatchConfig carries the tunables a match runs under. All of them come
// from server config, none are hidden constants.
type MatchConfig struct {
	TickInterval time.Duration
	Countdown    time.Duration
	SyncInterval time.Duration
	GraceWindow  time.Duration
	// LifeMode ends a player's run when health reaches zero.
	LifeMode bool
}

// RoomContext is what a Room must expose to be driven by the match state
// machine. Defined here to break the import cycle between room and state.
type RoomContext interface {
	GetID() string
	GetSong() string
	GetHostID() uuid.UUID
	// GetPlayerInfos returns members in join order.
	GetPlayerInfos() []PlayerInfo
	GetMatchConfig() MatchConfig
	ChangeState(newState State) error
	Broadcast(env *network.Envelope) error
	// FinishMatch hands the authoritative results to the composition root
	// for stat persistence and achievement evaluation.
	FinishMatch(results []PlayerResult)
	// ResetForLobby clears ready flags and purges members whose grace
	// window lapsed, before the room re-enters the lobby.
	ResetForLobby()
}
