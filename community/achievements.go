// community/achievements.go
package community

import (
	"time"

	"github.com/google/uuid"

	"github.com/CodingInCarhartts/yum-osu/account"
	"github.com/CodingInCarhartts/yum-osu/network"
)

// Achievement couples a key with its unlock predicate over a user's
// aggregates. The registry is fixed at startup.
type Achievement struct {
	Key         string
	Name        string
	Description string
	Predicate   func(stats account.Stats) bool
}

// Unlock is an immutable record; an achievement unlocks at most once per
// user and is never revoked.
type Unlock struct {
	UserID     uuid.UUID `json:"user_id"`
	Key        string    `json:"key"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

func defaultAchievements() []Achievement {
	return []Achievement{
		{
			Key:         "first_match",
			Name:        "First Steps",
			Description: "Complete your first match",
			Predicate:   func(s account.Stats) bool { return s.PlayCount >= 1 },
		},
		{
			Key:         "play_50",
			Name:        "Regular",
			Description: "Complete 50 matches",
			Predicate:   func(s account.Stats) bool { return s.PlayCount >= 50 },
		},
		{
			Key:         "combo_100",
			Name:        "Unbroken",
			Description: "Reach a 100 combo",
			Predicate:   func(s account.Stats) bool { return s.BestCombo >= 100 },
		},
		{
			Key:         "accuracy_95",
			Name:        "Sharpshooter",
			Description: "Finish a match at 95% accuracy or better",
			Predicate:   func(s account.Stats) bool { return s.BestAccuracy >= 95.0 },
		},
		{
			Key:         "score_1m",
			Name:        "Millionaire",
			Description: "Accumulate 1,000,000 total score",
			Predicate:   func(s account.Stats) bool { return s.TotalScore >= 1_000_000 },
		},
		{
			Key:         "flawless",
			Name:        "Flawless",
			Description: "Finish a match without a single miss at 100% accuracy",
			Predicate:   func(s account.Stats) bool { return s.FlawlessGames >= 1 },
		},
	}
}

// OfferStats runs every achievement predicate against the user's current
// aggregates. First satisfaction appends an unlock record; re-evaluation
// of an unlocked achievement is a no-op.
func (m *Manager) OfferStats(userID uuid.UUID, stats account.Stats) []Achievement {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	byKey, ok := m.unlocks[userID]
	if !ok {
		byKey = make(map[string]Unlock)
		m.unlocks[userID] = byKey
	}

	var unlocked []Achievement
	for _, a := range m.registry {
		if _, done := byKey[a.Key]; done {
			continue
		}
		if !a.Predicate(stats) {
			continue
		}
		byKey[a.Key] = Unlock{UserID: userID, Key: a.Key, UnlockedAt: m.now()}
		unlocked = append(unlocked, a)
	}
	return unlocked
}

// AchievementsFor lists the full registry with the user's unlock times.
func (m *Manager) AchievementsFor(userID uuid.UUID) []network.AchievementInfo {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	byKey := m.unlocks[userID]
	out := make([]network.AchievementInfo, 0, len(m.registry))
	for _, a := range m.registry {
		info := network.AchievementInfo{
			Key:         a.Key,
			Name:        a.Name,
			Description: a.Description,
		}
		if u, ok := byKey[a.Key]; ok {
			t := u.UnlockedAt
			info.UnlockedAt = &t
		}
		out = append(out, info)
	}
	return out
}
