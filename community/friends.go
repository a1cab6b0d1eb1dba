// community/friends.go
package community

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CodingInCarhartts/yum-osu/network"
)

type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendAccepted FriendStatus = "accepted"
	FriendBlocked  FriendStatus = "blocked"
)

// Friendship is stored once per pair. Pending and blocked relations are
// directional via Initiator; accepted relations are symmetric.
type Friendship struct {
	UserA     uuid.UUID    `json:"user_a"`
	UserB     uuid.UUID    `json:"user_b"`
	Status    FriendStatus `json:"status"`
	Initiator uuid.UUID    `json:"initiator"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (f *Friendship) other(userID uuid.UUID) uuid.UUID {
	if f.UserA == userID {
		return f.UserB
	}
	return f.UserA
}

// pairKey normalizes the pair so a relation is never duplicated in both
// directions.
func pairKey(a, b uuid.UUID) string {
	as, bs := a.String(), b.String()
	if strings.Compare(as, bs) > 0 {
		as, bs = bs, as
	}
	return as + "|" + bs
}

// Request creates a pending friendship from requester to target.
func (m *Manager) Request(requester, target uuid.UUID) error {
	if requester == target {
		return ErrSelfRelation
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	key := pairKey(requester, target)
	if f, exists := m.friendships[key]; exists {
		switch f.Status {
		case FriendBlocked:
			// Only the blocker can re-open the relation.
			if f.Initiator != requester {
				return ErrBlocked
			}
		case FriendAccepted:
			return nil // already friends
		case FriendPending:
			if f.Initiator == requester {
				return nil // duplicate request, no-op
			}
			// A pending request already exists the other way; accepting
			// it is the caller's move, not re-requesting.
			return nil
		}
	}

	now := m.now()
	m.friendships[key] = &Friendship{
		UserA:     requester,
		UserB:     target,
		Status:    FriendPending,
		Initiator: requester,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// Accept flips a matching pending request to accepted. accepter must be
// the target of the pending request.
func (m *Manager) Accept(accepter, requester uuid.UUID) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	f, exists := m.friendships[pairKey(accepter, requester)]
	if !exists || f.Status != FriendPending || f.Initiator != requester {
		return ErrNoSuchRequest
	}
	f.Status = FriendAccepted
	f.UpdatedAt = m.now()
	return nil
}

// Block removes any existing relation and suppresses future requests from
// target to blocker.
func (m *Manager) Block(blocker, target uuid.UUID) error {
	if blocker == target {
		return ErrSelfRelation
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.now()
	m.friendships[pairKey(blocker, target)] = &Friendship{
		UserA:     blocker,
		UserB:     target,
		Status:    FriendBlocked,
		Initiator: blocker,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// FriendsOf lists the user's relations: accepted friends plus pending
// requests in either direction. Blocks are invisible to the blocked side.
func (m *Manager) FriendsOf(userID uuid.UUID) []network.FriendInfo {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var out []network.FriendInfo
	for _, f := range m.friendships {
		if f.UserA != userID && f.UserB != userID {
			continue
		}
		if f.Status == FriendBlocked {
			continue
		}
		other := f.other(userID)
		name := ""
		if u, err := m.accounts.GetUser(other); err == nil {
			name = u.Username
		}
		out = append(out, network.FriendInfo{
			UserID:   other,
			Username: name,
			Status:   string(f.Status),
		})
	}
	return out
}

// acceptedFriendIDs is used by the friends leaderboard scope.
func (m *Manager) acceptedFriendIDs(userID uuid.UUID) map[uuid.UUID]bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ids := make(map[uuid.UUID]bool)
	for _, f := range m.friendships {
		if f.Status != FriendAccepted {
			continue
		}
		if f.UserA == userID {
			ids[f.UserB] = true
		} else if f.UserB == userID {
			ids[f.UserA] = true
		}
	}
	return ids
}
