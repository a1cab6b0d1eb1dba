// community/community.go
package community

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CodingInCarhartts/yum-osu/account"
)

var (
	ErrNoSuchRequest      = errors.New("no matching friend request")
	ErrBlocked            = errors.New("request suppressed by block")
	ErrSelfRelation       = errors.New("cannot befriend yourself")
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrTournamentClosed   = errors.New("tournament is not open for entry")
	ErrTournamentFull     = errors.New("tournament is full")
	ErrAlreadyEntered     = errors.New("player already entered")
	ErrMatchNotFound      = errors.New("bracket match not found")
	ErrNotAParticipant    = errors.New("winner is not a participant of this match")
)

// Manager owns the social tables: friendships, chat history, achievement
// unlocks and tournaments. It reads identity and aggregates from the
// account store but never writes it.
type Manager struct {
	accounts *account.Store

	friendships  map[string]*Friendship // normalized pair key
	messages     map[string][]ChatMessage
	historyLimit int
	unlocks      map[uuid.UUID]map[string]Unlock
	tournaments  map[uuid.UUID]*Tournament
	registry     []Achievement

	mutex sync.RWMutex
	now   func() time.Time
}

func NewManager(accounts *account.Store, chatHistoryLimit int) *Manager {
	if chatHistoryLimit <= 0 {
		chatHistoryLimit = 200
	}
	return &Manager{
		accounts:     accounts,
		friendships:  make(map[string]*Friendship),
		messages:     make(map[string][]ChatMessage),
		historyLimit: chatHistoryLimit,
		unlocks:      make(map[uuid.UUID]map[string]Unlock),
		tournaments:  make(map[uuid.UUID]*Tournament),
		registry:     defaultAchievements(),
		now:          time.Now,
	}
}

// Snapshot bundles everything the community manager persists.
type Snapshot struct {
	Friendships []Friendship              `json:"friendships"`
	Messages    map[string][]ChatMessage  `json:"messages"`
	Unlocks     []Unlock                  `json:"unlocks"`
	Tournaments []Tournament              `json:"tournaments"`
}

func (m *Manager) Export() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{Messages: make(map[string][]ChatMessage, len(m.messages))}
	for _, f := range m.friendships {
		snap.Friendships = append(snap.Friendships, *f)
	}
	for target, msgs := range m.messages {
		cp := make([]ChatMessage, len(msgs))
		copy(cp, msgs)
		snap.Messages[target] = cp
	}
	for _, byKey := range m.unlocks {
		for _, u := range byKey {
			snap.Unlocks = append(snap.Unlocks, u)
		}
	}
	for _, t := range m.tournaments {
		snap.Tournaments = append(snap.Tournaments, *t)
	}
	return snap
}

func (m *Manager) Restore(snap Snapshot) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.friendships = make(map[string]*Friendship, len(snap.Friendships))
	for i := range snap.Friendships {
		f := snap.Friendships[i]
		m.friendships[pairKey(f.UserA, f.UserB)] = &f
	}
	m.messages = make(map[string][]ChatMessage, len(snap.Messages))
	for target, msgs := range snap.Messages {
		cp := make([]ChatMessage, len(msgs))
		copy(cp, msgs)
		m.messages[target] = cp
	}
	m.unlocks = make(map[uuid.UUID]map[string]Unlock)
	for _, u := range snap.Unlocks {
		byKey, ok := m.unlocks[u.UserID]
		if !ok {
			byKey = make(map[string]Unlock)
			m.unlocks[u.UserID] = byKey
		}
		byKey[u.Key] = u
	}
	m.tournaments = make(map[uuid.UUID]*Tournament, len(snap.Tournaments))
	for i := range snap.Tournaments {
		t := snap.Tournaments[i]
		m.tournaments[t.ID] = &t
	}
}
