// services/stats_service.go
package services

import (
	"time"

	"github.com/google/uuid"

	"github.com/CodingInCarhartts/yum-osu/account"
	"github.com/CodingInCarhartts/yum-osu/community"
	"github.com/CodingInCarhartts/yum-osu/logger"
	"github.com/CodingInCarhartts/yum-osu/persistence"
	"github.com/CodingInCarhartts/yum-osu/state"
)

// StatsService folds finished-match results into the account aggregates,
// runs achievement checks over the updated aggregates and appends the
// match to persistent history.
type StatsService struct {
	accounts  *account.Store
	community *community.Manager
	store     persistence.Store
}

func NewStatsService(accounts *account.Store, comm *community.Manager, store persistence.Store) *StatsService {
	return &StatsService{accounts: accounts, community: comm, store: store}
}

// AchievementGrant pairs a user with the achievements a match unlocked
// for them, so the caller can notify the player.
type AchievementGrant struct {
	UserID       uuid.UUID
	Achievements []community.Achievement
}

// ApplyResults is the authoritative write path for a completed match.
// Aggregates only ever grow from it; a failed account lookup skips that
// player without dropping the rest.
func (s *StatsService) ApplyResults(roomID, song string, results []state.PlayerResult) []AchievementGrant {
	var grants []AchievementGrant

	for _, r := range results {
		mr := account.MatchResult{
			Score:       r.Score,
			Accuracy:    r.Accuracy,
			MaxCombo:    r.MaxCombo,
			Perfect:     r.Hits.Perfect,
			Good:        r.Hits.Good,
			OK:          r.Hits.OK,
			Misses:      r.Hits.Miss,
			Won:         r.Rank == 1,
			PlayTimeSec: r.PlayTimeSec,
		}
		if err := s.accounts.RecordMatch(r.UserID, mr); err != nil {
			logger.Log.Warnw("skipping result for unknown account",
				"user_id", r.UserID, "room_id", roomID, "error", err)
			continue
		}

		user, err := s.accounts.GetUser(r.UserID)
		if err != nil {
			continue
		}
		if unlocked := s.community.OfferStats(r.UserID, user.Stats); len(unlocked) > 0 {
			grants = append(grants, AchievementGrant{UserID: r.UserID, Achievements: unlocked})
		}
	}

	if s.store != nil {
		rec := persistence.MatchRecord{
			RoomID:     roomID,
			Song:       song,
			FinishedAt: time.Now(),
			Results:    results,
		}
		if err := s.store.AppendMatch(rec); err != nil {
			logger.Log.Errorw("failed to append match record",
				"room_id", roomID, "error", err)
		}
	}

	return grants
}

// PlayerStats resolves a username to its account aggregates, used by the
// admin RPC surface.
func (s *StatsService) PlayerStats(username string) (account.User, error) {
	return s.accounts.GetUserByName(username)
}
