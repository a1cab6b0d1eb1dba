// state/events.go
package state

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// EventKind tags a gameplay event reported by a member.
type EventKind string

const (
	EventHit        EventKind = "hit"
	EventMiss       EventKind = "miss"
	EventComboBreak EventKind = "combo-break"
	EventFinished   EventKind = "finished"
)

// Hit tiers, matching the single-player hit windows.
const (
	TierPerfect = 300
	TierGood    = 100
	TierOK      = 50
)

// comboDivisor controls the combo multiplier: every 25 combo adds another
// full tier to each hit.
const comboDivisor = 25

// missHealthCost is drained per miss; health never drops below zero.
const missHealthCost = 10.0

// MatchEvent is one append-only ledger entry. ReceivedAt is assigned by
// the coordinator and is monotonically non-decreasing within one match.
type MatchEvent struct {
	PlayerID        uuid.UUID `json:"player_id"`
	Kind            EventKind `json:"kind"`
	CircleID        uint32    `json:"circle_id"`
	Tier            int       `json:"tier"`
	ScoreDelta      int64     `json:"score_delta"`
	ReceivedAt      time.Time `json:"received_at"`
	ClientTimestamp float64   `json:"client_timestamp"`
}

type HitCounts struct {
	Perfect int `json:"perfect"`
	Good    int `json:"good"`
	OK      int `json:"ok"`
	Miss    int `json:"miss"`
}

func (h HitCounts) total() int {
	return h.Perfect + h.Good + h.OK + h.Miss
}

// Snapshot is the live score state of one member, owned exclusively by the
// match coordinator.
type Snapshot struct {
	UserID       uuid.UUID `json:"user_id"`
	Username     string    `json:"username"`
	Score        int64     `json:"score"`
	Combo        int       `json:"combo"`
	MaxCombo     int       `json:"max_combo"`
	Accuracy     float64   `json:"accuracy"`
	Health       float64   `json:"health"`
	Hits         HitCounts `json:"hits"`
	Finished     bool      `json:"finished"`
	FinishedAt   time.Time `json:"finished_at,omitzero"`
	Disconnected bool      `json:"disconnected"`
}

func newSnapshot(userID uuid.UUID, username string) *Snapshot {
	return &Snapshot{
		UserID:   userID,
		Username: username,
		Accuracy: 100.0,
		Health:   100.0,
	}
}

// applyHit scores one hit at the given tier and returns the score delta.
func (s *Snapshot) applyHit(tier int) int64 {
	delta := int64(tier * (1 + s.Combo/comboDivisor))
	s.Score += delta
	s.Combo++
	if s.Combo > s.MaxCombo {
		s.MaxCombo = s.Combo
	}
	switch tier {
	case TierPerfect:
		s.Hits.Perfect++
	case TierGood:
		s.Hits.Good++
	case TierOK:
		s.Hits.OK++
	}
	s.recalcAccuracy()
	return delta
}

func (s *Snapshot) applyMiss() {
	s.Combo = 0
	s.Hits.Miss++
	s.Health -= missHealthCost
	if s.Health < 0 {
		s.Health = 0
	}
	s.recalcAccuracy()
}

func (s *Snapshot) recalcAccuracy() {
	total := s.Hits.total()
	if total == 0 {
		s.Accuracy = 100.0
		return
	}
	weighted := float64(s.Hits.Perfect)*TierPerfect +
		float64(s.Hits.Good)*TierGood +
		float64(s.Hits.OK)*TierOK
	s.Accuracy = weighted / (float64(total) * TierPerfect) * 100.0
}

// PlayerResult is one participant's final authoritative outcome.
type PlayerResult struct {
	Rank        int       `json:"rank"`
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	Score       int64     `json:"score"`
	Accuracy    float64   `json:"accuracy"`
	MaxCombo    int       `json:"max_combo"`
	Hits        HitCounts `json:"hits"`
	Finished    bool      `json:"finished"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
	PlayTimeSec int64     `json:"play_time_seconds"`
}

// rankResults orders results by descending score, ties broken by higher
// accuracy, then earlier finish, then user id so the order is reproducible
// for identical inputs.
func rankResults(results []PlayerResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Accuracy != b.Accuracy {
			return a.Accuracy > b.Accuracy
		}
		af, bf := finishOrder(a), finishOrder(b)
		if !af.Equal(bf) {
			return af.Before(bf)
		}
		return a.UserID.String() < b.UserID.String()
	})
	for i := range results {
		results[i].Rank = i + 1
	}
}

// finishOrder places members that never finished after every member that
// did.
func finishOrder(r PlayerResult) time.Time {
	if !r.Finished || r.FinishedAt.IsZero() {
		return time.Unix(1<<62, 0)
	}
	return r.FinishedAt
}
