// room/room.go
package room

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CodingInCarhartts/yum-osu/network"
	"github.com/CodingInCarhartts/yum-osu/state"
)

var (
	ErrInvalidCapacity = errors.New("room capacity must be between 2 and 8")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomFull        = errors.New("room is full")
	ErrAlreadyInRoom   = errors.New("user is already in a room")
	ErrNotAMember      = errors.New("user is not a member of this room")
)

const (
	MinCapacity = 2
	MaxCapacity = 8
)

// tickInterval drives the room state machine; snapshot sync rides on top
// of it at the configured interval.
const tickInterval = 100 * time.Millisecond

// Member is one seat in a room. The live score snapshot lives in the
// match coordinator, not here; the room only tracks identity, readiness
// and connection liveness.
type Member struct {
	UserID         uuid.UUID
	SessionID      string
	Username       string
	Ready          bool
	JoinedAt       time.Time
	Disconnected   bool
	DisconnectedAt time.Time
}

// ResultSink receives a finished match's authoritative results.
type ResultSink func(roomID, song string, results []state.PlayerResult)

// Room is a bounded group of players coordinating matches. Members are
// kept in join order so host transfer is deterministic.
type Room struct {
	ID           string
	Name         string
	Capacity     int
	Song         string
	HostID       uuid.UUID
	StateMachine state.StateMachine
	CreatedAt    time.Time

	members     []*Member
	broadcaster Broadcaster
	sink        ResultSink
	matchCfg    state.MatchConfig
	mutex       sync.RWMutex

	ticker    *time.Ticker
	closeChan chan struct{}
	closeOnce sync.Once
	defunct   bool
}

// NewRoom creates a room with the host as its first, unready member.
func NewRoom(id, name string, capacity int, host *Member, cfg state.MatchConfig, b Broadcaster, sink ResultSink) *Room {
	cfg.TickInterval = tickInterval
	r := &Room{
		ID:          id,
		Name:        name,
		Capacity:    capacity,
		HostID:      host.UserID,
		CreatedAt:   time.Now(),
		members:     []*Member{host},
		broadcaster: b,
		sink:        sink,
		matchCfg:    cfg,
		closeChan:   make(chan struct{}),
	}

	r.StateMachine = state.NewBaseStateMachine(state.NewLobbyState(r))

	r.ticker = time.NewTicker(tickInterval)
	go r.loop()

	return r
}

// --- state.RoomContext ---

func (r *Room) GetID() string {
	return r.ID
}

func (r *Room) GetSong() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.Song
}

func (r *Room) GetHostID() uuid.UUID {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.HostID
}

func (r *Room) GetPlayerInfos() []state.PlayerInfo {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	infos := make([]state.PlayerInfo, 0, len(r.members))
	for _, m := range r.members {
		infos = append(infos, state.PlayerInfo{
			UserID:    m.UserID,
			Username:  m.Username,
			Ready:     m.Ready,
			Connected: !m.Disconnected,
		})
	}
	return infos
}

func (r *Room) GetMatchConfig() state.MatchConfig {
	return r.matchCfg
}

func (r *Room) ChangeState(newState state.State) error {
	return r.StateMachine.ChangeState(newState)
}

func (r *Room) Broadcast(env *network.Envelope) error {
	return r.broadcaster.BroadcastToRoom(r.ID, env)
}

func (r *Room) FinishMatch(results []state.PlayerResult) {
	if r.sink != nil {
		r.sink(r.ID, r.GetSong(), results)
	}
}

// ResetForLobby clears ready flags and drops members whose connection
// never came back, then re-checks the host seat.
func (r *Room) ResetForLobby() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	kept := r.members[:0]
	for _, m := range r.members {
		if m.Disconnected {
			continue
		}
		m.Ready = false
		kept = append(kept, m)
	}
	r.members = kept
	r.ensureHostLocked()
	if len(r.members) == 0 {
		r.defunct = true
		r.stop()
	}
}

// --- membership ---

// Join adds a member, or resumes a disconnected one mid-match. The
// capacity check and the insert happen under one lock, so concurrent
// joins can never overfill the room.
func (r *Room) Join(userID uuid.UUID, sessionID, username string) error {
	r.mutex.Lock()

	if m := r.findLocked(userID); m != nil {
		if m.Disconnected {
			m.Disconnected = false
			m.SessionID = sessionID
			r.mutex.Unlock()
			if ps, ok := r.StateMachine.GetCurrentState().(*state.PlayingState); ok {
				ps.MemberReconnected(userID)
			}
			return nil
		}
		r.mutex.Unlock()
		return ErrAlreadyInRoom
	}

	if r.StateMachine.GetCurrentState().GetID() != state.StateLobby {
		r.mutex.Unlock()
		return state.ErrMatchInProgress
	}
	if len(r.members) >= r.Capacity {
		r.mutex.Unlock()
		return ErrRoomFull
	}

	r.members = append(r.members, &Member{
		UserID:    userID,
		SessionID: sessionID,
		Username:  username,
		JoinedAt:  time.Now(),
	})
	r.mutex.Unlock()
	return nil
}

// Leave removes a member in the lobby, or opens its grace window while a
// match is running. Returns true when the room is now empty and should be
// destroyed.
func (r *Room) Leave(userID uuid.UUID) (empty bool) {
	if ps, ok := r.StateMachine.GetCurrentState().(*state.PlayingState); ok {
		r.mutex.Lock()
		if m := r.findLocked(userID); m != nil && !m.Disconnected {
			m.Disconnected = true
			m.DisconnectedAt = time.Now()
			r.mutex.Unlock()
			ps.MemberDisconnected(userID)
			return false
		}
		r.mutex.Unlock()
		return false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, m := range r.members {
		if m.UserID == userID {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	r.ensureHostLocked()
	if len(r.members) == 0 {
		r.defunct = true
		r.stop()
		return true
	}
	return false
}

// SetReady flips a member's ready flag. Unknown members are a no-op.
func (r *Room) SetReady(userID uuid.UUID, ready bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if m := r.findLocked(userID); m != nil {
		m.Ready = ready
	}
}

// SelectSong sets the song reference; host only.
func (r *Room) SelectSong(userID uuid.UUID, song string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if userID != r.HostID {
		return state.ErrNotHost
	}
	r.Song = song
	return nil
}

// StartMatch begins the ready-up gate check; valid only in the lobby.
func (r *Room) StartMatch(userID uuid.UUID) error {
	if ls, ok := r.StateMachine.GetCurrentState().(*state.LobbyState); ok {
		return ls.Start(userID)
	}
	return state.ErrMatchInProgress
}

// StopMatch force-ends a running match; host only.
func (r *Room) StopMatch(userID uuid.UUID) error {
	if ps, ok := r.StateMachine.GetCurrentState().(*state.PlayingState); ok {
		return ps.ForceStop(userID)
	}
	return state.ErrNoMatchRunning
}

// HandleEvent routes a gameplay event to the current state.
func (r *Room) HandleEvent(userID uuid.UUID, ev *state.MatchEvent) error {
	return r.StateMachine.GetCurrentState().HandleEvent(userID, ev)
}

func (r *Room) HasMember(userID uuid.UUID) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.findLocked(userID) != nil
}

func (r *Room) MemberCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.members)
}

func (r *Room) Defunct() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.defunct
}

// Status reports the lifecycle state id (lobby, starting, playing,
// completed).
func (r *Room) Status() string {
	return r.StateMachine.GetCurrentState().GetID()
}

// StatePayload builds the room_state broadcast payload.
func (r *Room) StatePayload() network.RoomStateUpdate {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	payload := network.RoomStateUpdate{
		RoomID: r.ID,
		Name:   r.Name,
		HostID: r.HostID,
		Song:   r.Song,
		State:  r.StateMachine.GetCurrentState().GetID(),
	}
	for _, m := range r.members {
		if m.Disconnected {
			continue
		}
		payload.Members = append(payload.Members, network.RoomMemberInfo{
			UserID:   m.UserID,
			Username: m.Username,
			Ready:    m.Ready,
		})
	}
	return payload
}

// Summary builds the room_list entry.
func (r *Room) Summary() network.RoomSummary {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return network.RoomSummary{
		RoomID:   r.ID,
		Name:     r.Name,
		Song:     r.Song,
		State:    r.StateMachine.GetCurrentState().GetID(),
		Members:  len(r.members),
		Capacity: r.Capacity,
	}
}

// ensureHostLocked transfers the host seat to the earliest-joined
// connected member when the current host is gone.
func (r *Room) ensureHostLocked() {
	for _, m := range r.members {
		if m.UserID == r.HostID && !m.Disconnected {
			return
		}
	}
	for _, m := range r.members {
		if !m.Disconnected {
			r.HostID = m.UserID
			return
		}
	}
}

func (r *Room) findLocked(userID uuid.UUID) *Member {
	for _, m := range r.members {
		if m.UserID == userID {
			return m
		}
	}
	return nil
}

// loop drives the state machine at the room tick rate.
func (r *Room) loop() {
	for {
		select {
		case <-r.ticker.C:
			if current := r.StateMachine.GetCurrentState(); current != nil {
				current.OnUpdate()
			}
		case <-r.closeChan:
			r.ticker.Stop()
			return
		}
	}
}

func (r *Room) stop() {
	r.closeOnce.Do(func() {
		close(r.closeChan)
	})
}

// Close shuts down the room loop.
func (r *Room) Close() {
	r.stop()
}
