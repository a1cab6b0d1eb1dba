package community

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodingInCarhartts/yum-osu/account"
)

// newTestCommunity registers n users and returns the manager plus their
// ids in registration order.
func newTestCommunity(t *testing.T, n int) (*Manager, *account.Store, []uuid.UUID) {
	t.Helper()
	accounts := account.NewStore()
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		id, err := accounts.Register(fmt.Sprintf("player%02d", i), "", "longenough")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return NewManager(accounts, 5), accounts, ids
}

func TestFriends_RequestAcceptFlow(t *testing.T) {
	m, _, ids := newTestCommunity(t, 2)
	alice, bob := ids[0], ids[1]

	require.NoError(t, m.Request(alice, bob))

	// Accepting requires a matching pending request: the requester cannot
	// accept their own, and a stranger has nothing to accept.
	assert.ErrorIs(t, m.Accept(alice, bob), ErrNoSuchRequest)
	assert.ErrorIs(t, m.Accept(bob, uuid.New()), ErrNoSuchRequest)

	require.NoError(t, m.Accept(bob, alice))

	// Accepting twice finds no pending request.
	assert.ErrorIs(t, m.Accept(bob, alice), ErrNoSuchRequest)

	for _, viewer := range []uuid.UUID{alice, bob} {
		friends := m.FriendsOf(viewer)
		require.Len(t, friends, 1)
		assert.Equal(t, string(FriendAccepted), friends[0].Status)
	}
}

func TestFriends_SelfAndDuplicateRequests(t *testing.T) {
	m, _, ids := newTestCommunity(t, 2)
	alice, bob := ids[0], ids[1]

	assert.ErrorIs(t, m.Request(alice, alice), ErrSelfRelation)

	require.NoError(t, m.Request(alice, bob))
	// A repeat request is a silent no-op, not a second pending row.
	require.NoError(t, m.Request(alice, bob))
	assert.Len(t, m.FriendsOf(bob), 1)
}

func TestFriends_BlockSuppressesRequests(t *testing.T) {
	m, _, ids := newTestCommunity(t, 2)
	alice, bob := ids[0], ids[1]

	require.NoError(t, m.Block(alice, bob))
	assert.ErrorIs(t, m.Request(bob, alice), ErrBlocked)

	// The blocker can re-open the relation.
	require.NoError(t, m.Request(alice, bob))
}

func TestChat_HistoryIsBounded(t *testing.T) {
	m, _, ids := newTestCommunity(t, 1)

	for i := 0; i < 8; i++ {
		m.AppendMessage(ids[0], "player00", "room-1", fmt.Sprintf("msg %d", i))
	}

	history := m.History("room-1", 0)
	require.Len(t, history, 5, "history must be trimmed to the configured limit")
	assert.Equal(t, "msg 3", history[0].Body, "oldest retained message first")
	assert.Equal(t, "msg 7", history[len(history)-1].Body)

	tail := m.History("room-1", 2)
	require.Len(t, tail, 2)
	assert.Equal(t, "msg 6", tail[0].Body)
}

func TestChat_DirectKeyIsOrderIndependent(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, DirectKey(a, b), DirectKey(b, a))
}

func TestAchievements_UnlockOnceAndNeverRevoke(t *testing.T) {
	m, _, ids := newTestCommunity(t, 1)
	player := ids[0]

	unlocked := m.OfferStats(player, account.Stats{PlayCount: 1})
	require.Len(t, unlocked, 1)
	assert.Equal(t, "first_match", unlocked[0].Key)

	// Re-evaluating the same aggregates unlocks nothing new.
	assert.Empty(t, m.OfferStats(player, account.Stats{PlayCount: 2}))

	// Aggregates regressing (which should never happen) must not revoke.
	assert.Empty(t, m.OfferStats(player, account.Stats{}))
	infos := m.AchievementsFor(player)
	for _, info := range infos {
		if info.Key == "first_match" {
			assert.NotNil(t, info.UnlockedAt, "unlock must persist")
		}
	}
}

func TestAchievements_PredicatesOverAggregates(t *testing.T) {
	m, _, ids := newTestCommunity(t, 1)
	player := ids[0]

	stats := account.Stats{
		PlayCount:     50,
		BestCombo:     150,
		BestAccuracy:  96.0,
		TotalScore:    2_000_000,
		FlawlessGames: 1,
	}
	unlocked := m.OfferStats(player, stats)

	keys := make(map[string]bool)
	for _, a := range unlocked {
		keys[a.Key] = true
	}
	for _, want := range []string{"first_match", "play_50", "combo_100", "accuracy_95", "score_1m", "flawless"} {
		assert.True(t, keys[want], "expected %s unlocked", want)
	}
}

func TestLeaderboard_OrderAndTieBreaks(t *testing.T) {
	m, accounts, ids := newTestCommunity(t, 3)

	require.NoError(t, accounts.RecordMatch(ids[0], account.MatchResult{Score: 100, Accuracy: 90}))
	require.NoError(t, accounts.RecordMatch(ids[1], account.MatchResult{Score: 200, Accuracy: 50}))
	require.NoError(t, accounts.RecordMatch(ids[2], account.MatchResult{Score: 100, Accuracy: 95}))

	result := m.Leaderboard(ScopeGlobal, uuid.Nil, 0)
	require.Len(t, result.Entries, 3)
	assert.Equal(t, ids[1], result.Entries[0].UserID, "highest total score first")
	assert.Equal(t, ids[2], result.Entries[1].UserID, "accuracy breaks score ties")
	assert.Equal(t, ids[0], result.Entries[2].UserID)
	for i, e := range result.Entries {
		assert.Equal(t, i+1, e.Rank)
	}

	limited := m.Leaderboard(ScopeGlobal, uuid.Nil, 2)
	assert.Len(t, limited.Entries, 2)
}

func TestLeaderboard_FriendsScope(t *testing.T) {
	m, accounts, ids := newTestCommunity(t, 3)
	alice, bob, carol := ids[0], ids[1], ids[2]

	require.NoError(t, accounts.RecordMatch(bob, account.MatchResult{Score: 500}))
	require.NoError(t, accounts.RecordMatch(carol, account.MatchResult{Score: 900}))

	require.NoError(t, m.Request(alice, bob))
	require.NoError(t, m.Accept(bob, alice))

	result := m.Leaderboard(ScopeFriends, alice, 0)
	require.Len(t, result.Entries, 2, "friends scope includes the viewer and accepted friends only")
	for _, e := range result.Entries {
		assert.NotEqual(t, carol, e.UserID)
	}
}

func TestTournament_EntryAndBracket(t *testing.T) {
	m, _, ids := newTestCommunity(t, 4)

	tid := m.CreateTournament("Weekly Cup", time.Now(), 0)
	for _, id := range ids {
		require.NoError(t, m.JoinTournament(tid, id))
	}
	assert.ErrorIs(t, m.JoinTournament(tid, ids[0]), ErrAlreadyEntered)

	require.NoError(t, m.StartTournament(tid))
	assert.ErrorIs(t, m.JoinTournament(tid, uuid.New()), ErrTournamentClosed)

	tournament, err := m.GetTournament(tid)
	require.NoError(t, err)
	assert.Equal(t, TournamentInProgress, tournament.Status)
	// Four entrants: two semifinals plus the final.
	require.Len(t, tournament.Matches, 3)

	semi1, semi2 := tournament.Matches[1], tournament.Matches[2]
	require.NoError(t, m.ReportResult(tid, semi1.ID, semi1.Players[0]))
	require.NoError(t, m.ReportResult(tid, semi2.ID, semi2.Players[1]))

	assert.ErrorIs(t, m.ReportResult(tid, semi1.ID, semi1.Players[0]), ErrMatchNotFound)

	tournament, _ = m.GetTournament(tid)
	final := tournament.Matches[0]
	assert.ErrorIs(t, m.ReportResult(tid, final.ID, uuid.New()), ErrNotAParticipant)

	require.NoError(t, m.ReportResult(tid, final.ID, final.Players[0]))
	tournament, _ = m.GetTournament(tid)
	assert.Equal(t, TournamentClosed, tournament.Status)
	assert.Equal(t, final.Players[0], tournament.WinnerID)
	assert.False(t, tournament.EndsAt.IsZero())
}

func TestTournament_ByesAdvanceAutomatically(t *testing.T) {
	m, _, ids := newTestCommunity(t, 3)

	tid := m.CreateTournament("Odd Cup", time.Now(), 0)
	for _, id := range ids {
		require.NoError(t, m.JoinTournament(tid, id))
	}
	require.NoError(t, m.StartTournament(tid))

	tournament, err := m.GetTournament(tid)
	require.NoError(t, err)
	require.Len(t, tournament.Matches, 3, "three entrants pad to a four-slot bracket")

	// The lone entrant in the second semifinal advances without playing.
	semi2 := tournament.Matches[2]
	assert.True(t, semi2.Bye)
	assert.True(t, semi2.Completed)
	assert.Equal(t, ids[2], semi2.WinnerID)

	final := tournament.Matches[0]
	assert.Equal(t, ids[2], final.Players[1], "bye winner seeded into the final")

	semi1 := tournament.Matches[1]
	require.NoError(t, m.ReportResult(tid, semi1.ID, ids[0]))
	tournament, _ = m.GetTournament(tid)
	require.NoError(t, m.ReportResult(tid, tournament.Matches[0].ID, ids[0]))

	tournament, _ = m.GetTournament(tid)
	assert.Equal(t, TournamentClosed, tournament.Status)
	assert.Equal(t, ids[0], tournament.WinnerID)
}

func TestTournament_CascadingByes(t *testing.T) {
	m, _, ids := newTestCommunity(t, 5)

	tid := m.CreateTournament("Sparse Cup", time.Now(), 0)
	for _, id := range ids {
		require.NoError(t, m.JoinTournament(tid, id))
	}
	require.NoError(t, m.StartTournament(tid))

	tournament, err := m.GetTournament(tid)
	require.NoError(t, err)
	// Five entrants pad to eight slots: one real leaf match, one bye leaf,
	// and one leaf with no players at all, whose emptiness cascades up.
	require.Len(t, tournament.Matches, 7)

	playable := 0
	for _, match := range tournament.Matches {
		if !match.Completed && match.Players[0] != uuid.Nil && match.Players[1] != uuid.Nil {
			playable++
		}
	}
	assert.Equal(t, 2, playable, "expected exactly two playable matches after bye resolution")
}

func TestTournament_LimitsAndErrors(t *testing.T) {
	m, _, ids := newTestCommunity(t, 3)

	tid := m.CreateTournament("Tiny Cup", time.Now(), 2)
	require.NoError(t, m.JoinTournament(tid, ids[0]))
	require.NoError(t, m.JoinTournament(tid, ids[1]))
	assert.ErrorIs(t, m.JoinTournament(tid, ids[2]), ErrTournamentFull)

	assert.ErrorIs(t, m.JoinTournament(uuid.New(), ids[0]), ErrTournamentNotFound)
	assert.ErrorIs(t, m.StartTournament(uuid.New()), ErrTournamentNotFound)

	lonely := m.CreateTournament("Lonely Cup", time.Now(), 0)
	require.NoError(t, m.JoinTournament(lonely, ids[0]))
	assert.Error(t, m.StartTournament(lonely), "a bracket needs at least two entrants")
}

func TestCommunity_SnapshotRoundTrip(t *testing.T) {
	m, accounts, ids := newTestCommunity(t, 2)
	alice, bob := ids[0], ids[1]

	require.NoError(t, m.Request(alice, bob))
	require.NoError(t, m.Accept(bob, alice))
	m.AppendMessage(alice, "player00", "room-9", "hello")
	m.OfferStats(alice, account.Stats{PlayCount: 1})
	tid := m.CreateTournament("Cup", time.Now(), 8)

	snap := m.Export()

	restored := NewManager(accounts, 5)
	restored.Restore(snap)

	assert.Len(t, restored.FriendsOf(alice), 1)
	assert.Len(t, restored.History("room-9", 0), 1)
	_, err := restored.GetTournament(tid)
	assert.NoError(t, err)

	// The unlock survived, so re-offering is still a no-op.
	assert.Empty(t, restored.OfferStats(alice, account.Stats{PlayCount: 1}))
}
