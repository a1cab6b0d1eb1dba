// room/manager.go
package room

import (
	"sync"

	"github.com/google/uuid"
	"github.com/teris-io/shortid"

	"github.com/CodingInCarhartts/yum-osu/logger"
	"github.com/CodingInCarhartts/yum-osu/network"
	"github.com/CodingInCarhartts/yum-osu/state"
)

// Manager owns the room table. The one-room-per-user invariant is
// enforced here, under the manager lock, so two concurrent joins cannot
// land the same user in two rooms.
type Manager struct {
	rooms       map[string]*Room
	broadcaster Broadcaster
	sink        ResultSink
	matchCfg    state.MatchConfig
	mutex       sync.Mutex
}

func NewManager(cfg state.MatchConfig) *Manager {
	return &Manager{
		rooms:    make(map[string]*Room),
		matchCfg: cfg,
	}
}

// SetBroadcaster wires the broadcaster after construction; the
// broadcaster itself needs the managers, so this breaks the cycle.
func (m *Manager) SetBroadcaster(b Broadcaster) {
	m.broadcaster = b
}

// SetResultSink wires the match-result callback from the composition root.
func (m *Manager) SetResultSink(sink ResultSink) {
	m.sink = sink
}

// CreateRoom makes a new room with the host as its first, unready member.
func (m *Manager) CreateRoom(hostID uuid.UUID, sessionID, hostName, roomName string, capacity int) (*Room, error) {
	if capacity < MinCapacity || capacity > MaxCapacity {
		return nil, ErrInvalidCapacity
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.roomOfLocked(hostID) != nil {
		return nil, ErrAlreadyInRoom
	}

	id, err := shortid.Generate()
	if err != nil {
		return nil, err
	}

	host := &Member{
		UserID:    hostID,
		SessionID: sessionID,
		Username:  hostName,
	}
	r := NewRoom(id, roomName, capacity, host, m.matchCfg, m.broadcaster, m.sink)
	m.rooms[id] = r
	logger.Log.Infof("room %s created by %s (capacity %d)", id, hostName, capacity)
	return r, nil
}

// JoinRoom adds the user to the room, or resumes a disconnected seat.
func (m *Manager) JoinRoom(roomID string, userID uuid.UUID, sessionID, username string) (*Room, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	r, ok := m.rooms[roomID]
	if !ok || r.Defunct() {
		delete(m.rooms, roomID)
		return nil, ErrRoomNotFound
	}

	if current := m.roomOfLocked(userID); current != nil && current != r {
		return nil, ErrAlreadyInRoom
	}

	if err := r.Join(userID, sessionID, username); err != nil {
		return nil, err
	}
	return r, nil
}

// LeaveRoom removes the user; empty rooms are destroyed.
func (m *Manager) LeaveRoom(roomID string, userID uuid.UUID) (*Room, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if !r.HasMember(userID) {
		return r, ErrNotAMember
	}

	if empty := r.Leave(userID); empty {
		delete(m.rooms, roomID)
		logger.Log.Infof("room %s destroyed (last member left)", roomID)
		return nil, nil
	}
	return r, nil
}

// GetRoom looks a room up, lazily pruning rooms that wound down.
func (m *Manager) GetRoom(roomID string) (*Room, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return nil, false
	}
	if r.Defunct() {
		delete(m.rooms, roomID)
		return nil, false
	}
	return r, true
}

// RoomOf returns the room the user currently occupies, if any.
func (m *Manager) RoomOf(userID uuid.UUID) (*Room, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	r := m.roomOfLocked(userID)
	return r, r != nil
}

// ListRooms produces summaries reflecting state at call time.
func (m *Manager) ListRooms() []network.RoomSummary {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	out := make([]network.RoomSummary, 0, len(m.rooms))
	for id, r := range m.rooms {
		if r.Defunct() {
			delete(m.rooms, id)
			continue
		}
		out = append(out, r.Summary())
	}
	return out
}

func (m *Manager) Count() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.rooms)
}

// CloseAll stops every room loop, for shutdown.
func (m *Manager) CloseAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for id, r := range m.rooms {
		r.Close()
		delete(m.rooms, id)
	}
}

func (m *Manager) roomOfLocked(userID uuid.UUID) *Room {
	for _, r := range m.rooms {
		if r.Defunct() {
			continue
		}
		if r.HasMember(userID) {
			return r
		}
	}
	return nil
}
