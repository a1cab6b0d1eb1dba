// community/leaderboard.go
package community

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/CodingInCarhartts/yum-osu/network"
)

// Leaderboard scopes.
const (
	ScopeGlobal  = "global"
	ScopeCountry = "country"
	ScopeFriends = "friends"
)

// Leaderboard is a derived read over account aggregates; nothing about it
// is stored. Ties break by accuracy, then username, so two calls over the
// same aggregates produce identical rankings.
func (m *Manager) Leaderboard(scope string, viewer uuid.UUID, limit int) network.LeaderboardResult {
	users := m.accounts.Users()

	switch scope {
	case ScopeCountry:
		country := ""
		if u, err := m.accounts.GetUser(viewer); err == nil {
			country = u.Profile.Country
		}
		filtered := users[:0]
		for _, u := range users {
			if u.Profile.Country == country {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	case ScopeFriends:
		friends := m.acceptedFriendIDs(viewer)
		filtered := users[:0]
		for _, u := range users {
			if u.ID == viewer || friends[u.ID] {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	default:
		scope = ScopeGlobal
	}

	sort.SliceStable(users, func(i, j int) bool {
		a, b := users[i], users[j]
		if a.Stats.TotalScore != b.Stats.TotalScore {
			return a.Stats.TotalScore > b.Stats.TotalScore
		}
		if a.Stats.BestAccuracy != b.Stats.BestAccuracy {
			return a.Stats.BestAccuracy > b.Stats.BestAccuracy
		}
		return strings.ToLower(a.Username) < strings.ToLower(b.Username)
	})

	if limit <= 0 || limit > len(users) {
		limit = len(users)
	}

	result := network.LeaderboardResult{Scope: scope}
	for i, u := range users[:limit] {
		result.Entries = append(result.Entries, network.LeaderboardEntry{
			Rank:     i + 1,
			UserID:   u.ID,
			Username: u.Username,
			Score:    u.Stats.TotalScore,
			Accuracy: u.Stats.BestAccuracy,
		})
	}
	return result
}
