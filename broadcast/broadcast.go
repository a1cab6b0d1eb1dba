// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/google/uuid"

	"github.com/CodingInCarhartts/yum-osu/network"
	"github.com/CodingInCarhartts/yum-osu/room"
	"github.com/CodingInCarhartts/yum-osu/session"
)

var (
	ErrRoomNotFound = errors.New("room not found")
)

// Broadcaster fans envelopes out to one room or to specific users.
type Broadcaster interface {
	BroadcastToRoom(roomID string, env *network.Envelope) error
	BroadcastToUsers(userIDs []uuid.UUID, env *network.Envelope) error
}

// RoomBroadcaster resolves room membership to live sessions. Each send
// lands in the recipient's bounded outbound queue; a slow or dead client
// fails its own send and never stalls the rest of the room.
type RoomBroadcaster struct {
	roomManager    *room.Manager
	sessionManager *session.Manager
}

func NewRoomBroadcaster(roomManager *room.Manager, sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		roomManager:    roomManager,
		sessionManager: sessionManager,
	}
}

func (b *RoomBroadcaster) BroadcastToRoom(roomID string, env *network.Envelope) error {
	r, exists := b.roomManager.GetRoom(roomID)
	if !exists {
		return ErrRoomNotFound
	}

	for _, p := range r.GetPlayerInfos() {
		if !p.Connected {
			continue
		}
		for _, s := range b.sessionManager.GetByUserID(p.UserID) {
			// Fire and forget; the connection tears itself down on a
			// full queue.
			_ = s.Send(env)
		}
	}
	return nil
}

func (b *RoomBroadcaster) BroadcastToUsers(userIDs []uuid.UUID, env *network.Envelope) error {
	for _, userID := range userIDs {
		for _, s := range b.sessionManager.GetByUserID(userID) {
			_ = s.Send(env)
		}
	}
	return nil
}
