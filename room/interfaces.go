package room

import (
	"github.com/CodingInCarhartts/yum-osu/network"
)

// Broadcaster defines the interface for broadcasting messages to a room.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToRoom(roomID string, env *network.Envelope) error
}
