// state/playing_state.go
package state

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CodingInCarhartts/yum-osu/logger"
	"github.com/CodingInCarhartts/yum-osu/network"
)

// PlayingState ingests gameplay events and is the sole writer of the
// room's live snapshots. Events are applied in server-receipt order;
// snapshots are broadcast at the configured sync interval, not per event.
type PlayingState struct {
	RoomStateBase

	mutex     sync.Mutex
	snapshots map[uuid.UUID]*Snapshot
	order     []uuid.UUID
	ledger    []MatchEvent
	startedAt time.Time
	lastStamp time.Time
	sinceSync time.Duration
	// graceDeadlines maps a disconnected member to the instant its grace
	// window lapses.
	graceDeadlines map[uuid.UUID]time.Time
	done           bool
	forced         bool

	now func() time.Time
}

func NewPlayingState(room RoomContext) *PlayingState {
	s := &PlayingState{
		RoomStateBase: RoomStateBase{
			ID:   StatePlaying,
			Room: room,
		},
		snapshots:      make(map[uuid.UUID]*Snapshot),
		graceDeadlines: make(map[uuid.UUID]time.Time),
		now:            time.Now,
	}
	for _, p := range room.GetPlayerInfos() {
		s.snapshots[p.UserID] = newSnapshot(p.UserID, p.Username)
		s.order = append(s.order, p.UserID)
		if !p.Connected {
			s.memberDisconnectedLocked(p.UserID)
		}
	}
	return s
}

func (s *PlayingState) OnEnter() {
	s.mutex.Lock()
	s.startedAt = s.now()
	s.lastStamp = s.startedAt
	s.mutex.Unlock()
	logger.Log.Infof("room %s: match in progress", s.Room.GetID())
}

// HandleEvent applies one member event to its snapshot and appends it to
// the ledger. Receipt timestamps are clamped to stay non-decreasing.
func (s *PlayingState) HandleEvent(playerID uuid.UUID, ev *MatchEvent) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	snap, ok := s.snapshots[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	if snap.Finished || s.done {
		return nil
	}

	received := s.now()
	if received.Before(s.lastStamp) {
		received = s.lastStamp
	}
	s.lastStamp = received
	ev.PlayerID = playerID
	ev.ReceivedAt = received

	switch ev.Kind {
	case EventHit:
		switch ev.Tier {
		case TierPerfect, TierGood, TierOK:
		default:
			return ErrInvalidTier
		}
		ev.ScoreDelta = snap.applyHit(ev.Tier)
	case EventMiss:
		snap.applyMiss()
		cfg := s.Room.GetMatchConfig()
		if cfg.LifeMode && snap.Health <= 0 {
			snap.Finished = true
			snap.FinishedAt = received
		}
	case EventComboBreak:
		snap.Combo = 0
	case EventFinished:
		snap.Finished = true
		snap.FinishedAt = received
	default:
		return ErrNoMatchRunning
	}

	s.ledger = append(s.ledger, *ev)
	if s.allFinishedLocked() {
		s.done = true
	}
	return nil
}

// MemberDisconnected keeps the member's snapshot and opens its grace
// window. The match carries on for everyone else.
func (s *PlayingState) MemberDisconnected(userID uuid.UUID) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.memberDisconnectedLocked(userID)
}

func (s *PlayingState) memberDisconnectedLocked(userID uuid.UUID) {
	snap, ok := s.snapshots[userID]
	if !ok || snap.Finished {
		return
	}
	snap.Disconnected = true
	grace := s.Room.GetMatchConfig().GraceWindow
	s.graceDeadlines[userID] = s.now().Add(grace)
	logger.Log.Infof("room %s: player %s disconnected, grace window %v", s.Room.GetID(), userID, grace)
}

// MemberReconnected resumes event ingestion with the prior snapshot.
// Scoring is never restarted mid-match.
func (s *PlayingState) MemberReconnected(userID uuid.UUID) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	snap, ok := s.snapshots[userID]
	if !ok {
		return false
	}
	if _, waiting := s.graceDeadlines[userID]; !waiting {
		return false
	}
	delete(s.graceDeadlines, userID)
	snap.Disconnected = false
	logger.Log.Infof("room %s: player %s reconnected within grace window", s.Room.GetID(), userID)
	return true
}

// ForceStop ends the match immediately on the host's order. Unfinished
// members keep their last known snapshots in the ranking.
func (s *PlayingState) ForceStop(requester uuid.UUID) error {
	if requester != s.Room.GetHostID() {
		return ErrNotHost
	}
	s.mutex.Lock()
	s.done = true
	s.forced = true
	s.mutex.Unlock()
	return nil
}

func (s *PlayingState) OnUpdate() {
	cfg := s.Room.GetMatchConfig()

	s.mutex.Lock()
	now := s.now()
	for userID, deadline := range s.graceDeadlines {
		if now.Before(deadline) {
			continue
		}
		// Grace lapsed: the member is finished with its last snapshot.
		delete(s.graceDeadlines, userID)
		if snap := s.snapshots[userID]; snap != nil && !snap.Finished {
			snap.Finished = true
			snap.FinishedAt = deadline
		}
	}
	if !s.done && s.allFinishedLocked() {
		s.done = true
	}
	done := s.done

	var update *network.StateUpdate
	if !done {
		s.sinceSync += cfg.TickInterval
		if s.sinceSync >= cfg.SyncInterval {
			s.sinceSync = 0
			update = s.stateUpdateLocked()
		}
	}
	var results []PlayerResult
	if done {
		results = s.resultsLocked()
	}
	s.mutex.Unlock()

	if update != nil {
		if err := s.Room.Broadcast(network.MustEnvelope(network.KindStateUpdate, update)); err != nil {
			logger.Log.Warnf("room %s: state sync failed: %v", s.Room.GetID(), err)
		}
	}
	if done {
		if err := s.Room.ChangeState(NewCompletedState(s.Room, results)); err != nil {
			logger.Log.Errorf("room %s: could not complete match: %v", s.Room.GetID(), err)
		}
	}
}

// Snapshots returns a copy of the live snapshot set in join order.
func (s *PlayingState) Snapshots() []Snapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]Snapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.snapshots[id])
	}
	return out
}

// Ledger returns a copy of the append-only event log.
func (s *PlayingState) Ledger() []MatchEvent {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]MatchEvent, len(s.ledger))
	copy(out, s.ledger)
	return out
}

func (s *PlayingState) allFinishedLocked() bool {
	for _, snap := range s.snapshots {
		if !snap.Finished && !snap.Disconnected {
			return false
		}
	}
	// Disconnected members inside their grace window still hold the match
	// open; they may come back.
	return len(s.graceDeadlines) == 0
}

func (s *PlayingState) stateUpdateLocked() *network.StateUpdate {
	update := &network.StateUpdate{RoomID: s.Room.GetID()}
	for _, id := range s.order {
		snap := s.snapshots[id]
		update.Players = append(update.Players, network.PlayerSnapshot{
			UserID:   snap.UserID,
			Username: snap.Username,
			Score:    snap.Score,
			Combo:    snap.Combo,
			MaxCombo: snap.MaxCombo,
			Accuracy: snap.Accuracy,
			Health:   snap.Health,
			Finished: snap.Finished,
		})
	}
	return update
}

func (s *PlayingState) resultsLocked() []PlayerResult {
	results := make([]PlayerResult, 0, len(s.order))
	for _, id := range s.order {
		snap := s.snapshots[id]
		r := PlayerResult{
			UserID:     snap.UserID,
			Username:   snap.Username,
			Score:      snap.Score,
			Accuracy:   snap.Accuracy,
			MaxCombo:   snap.MaxCombo,
			Hits:       snap.Hits,
			Finished:   snap.Finished,
			FinishedAt: snap.FinishedAt,
		}
		end := snap.FinishedAt
		if end.IsZero() {
			end = s.now()
		}
		r.PlayTimeSec = int64(end.Sub(s.startedAt).Seconds())
		results = append(results, r)
	}
	rankResults(results)
	return results
}
