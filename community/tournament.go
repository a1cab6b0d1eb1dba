// community/tournament.go
package community

import (
	"time"

	"github.com/google/uuid"
)

type TournamentStatus string

const (
	TournamentOpen       TournamentStatus = "open"
	TournamentInProgress TournamentStatus = "in-progress"
	TournamentClosed     TournamentStatus = "closed"
)

// BracketMatch is one node of a single-elimination bracket, stored in
// heap order: Matches[0] is the final, children of node i sit at 2i+1 and
// 2i+2. A bye is a leaf with one empty slot; its winner is fixed when the
// bracket is built and no match is ever played for it.
type BracketMatch struct {
	ID        uuid.UUID    `json:"id"`
	Round     int          `json:"round"`
	Players   [2]uuid.UUID `json:"players"` // uuid.Nil marks an unfilled slot or a bye
	WinnerID  uuid.UUID    `json:"winner_id"`
	Completed bool         `json:"completed"`
	Bye       bool         `json:"bye"`
}

type Tournament struct {
	ID       uuid.UUID        `json:"id"`
	Name     string           `json:"name"`
	StartsAt time.Time        `json:"starts_at"`
	EndsAt   time.Time        `json:"ends_at,omitzero"`
	Status   TournamentStatus `json:"status"`
	Entrants []uuid.UUID      `json:"entrants"`
	MaxEntry int              `json:"max_entry"`
	Matches  []BracketMatch   `json:"matches"`
	WinnerID uuid.UUID        `json:"winner_id"`
}

func (m *Manager) CreateTournament(name string, startsAt time.Time, maxEntry int) uuid.UUID {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	t := &Tournament{
		ID:       uuid.New(),
		Name:     name,
		StartsAt: startsAt,
		Status:   TournamentOpen,
		MaxEntry: maxEntry,
	}
	m.tournaments[t.ID] = t
	return t.ID
}

func (m *Manager) JoinTournament(tournamentID, playerID uuid.UUID) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	t, ok := m.tournaments[tournamentID]
	if !ok {
		return ErrTournamentNotFound
	}
	if t.Status != TournamentOpen {
		return ErrTournamentClosed
	}
	if t.MaxEntry > 0 && len(t.Entrants) >= t.MaxEntry {
		return ErrTournamentFull
	}
	for _, id := range t.Entrants {
		if id == playerID {
			return ErrAlreadyEntered
		}
	}
	t.Entrants = append(t.Entrants, playerID)
	return nil
}

// StartTournament freezes entry and builds the bracket. Entrant count is
// padded up to a power of two with byes, which advance automatically.
func (m *Manager) StartTournament(tournamentID uuid.UUID) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	t, ok := m.tournaments[tournamentID]
	if !ok {
		return ErrTournamentNotFound
	}
	if t.Status != TournamentOpen {
		return ErrTournamentClosed
	}
	if len(t.Entrants) < 2 {
		return ErrTournamentClosed
	}

	t.Matches = buildBracket(t.Entrants)
	t.Status = TournamentInProgress
	m.advanceByesLocked(t)
	return nil
}

// ReportResult records a bracket match winner and feeds it into the
// parent slot. Completing the final closes the tournament.
func (m *Manager) ReportResult(tournamentID, matchID, winnerID uuid.UUID) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	t, ok := m.tournaments[tournamentID]
	if !ok {
		return ErrTournamentNotFound
	}

	for i := range t.Matches {
		match := &t.Matches[i]
		if match.ID != matchID {
			continue
		}
		if match.Completed {
			return ErrMatchNotFound
		}
		if match.Players[0] != winnerID && match.Players[1] != winnerID {
			return ErrNotAParticipant
		}
		m.completeMatchLocked(t, i, winnerID)
		return nil
	}
	return ErrMatchNotFound
}

func (m *Manager) GetTournament(tournamentID uuid.UUID) (Tournament, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	t, ok := m.tournaments[tournamentID]
	if !ok {
		return Tournament{}, ErrTournamentNotFound
	}
	return *t, nil
}

func (m *Manager) completeMatchLocked(t *Tournament, idx int, winnerID uuid.UUID) {
	match := &t.Matches[idx]
	match.WinnerID = winnerID
	match.Completed = true

	if idx == 0 {
		t.Status = TournamentClosed
		t.WinnerID = winnerID
		t.EndsAt = m.now()
		return
	}

	parent := &t.Matches[(idx-1)/2]
	if idx%2 == 1 {
		parent.Players[0] = winnerID
	} else {
		parent.Players[1] = winnerID
	}
}

// advanceByesLocked resolves every bye immediately after the bracket is
// built, including byes that cascade into the next round. A slot is dead
// when it is empty and nothing below can still fill it; a match with a
// dead slot is an automatic win, never played.
func (m *Manager) advanceByesLocked(t *Tournament) {
	total := len(t.Matches)
	slotDead := func(idx, slot int) bool {
		if t.Matches[idx].Players[slot] != uuid.Nil {
			return false
		}
		child := 2*idx + 1
		if slot == 1 {
			child = 2*idx + 2
		}
		if child >= total {
			return true // leaf slot, nobody to fill it
		}
		return t.Matches[child].Completed
	}

	for changed := true; changed; {
		changed = false
		for i := total - 1; i >= 0; i-- {
			match := &t.Matches[i]
			if match.Completed {
				continue
			}
			dead0, dead1 := slotDead(i, 0), slotDead(i, 1)
			if !dead0 && !dead1 {
				continue
			}
			winner := match.Players[0]
			if dead0 {
				winner = match.Players[1]
			}
			if match.Players[0] != uuid.Nil && match.Players[1] != uuid.Nil {
				continue // both seats filled, a real match
			}
			match.Bye = true
			m.completeMatchLocked(t, i, winner)
			changed = true
		}
	}
}

// buildBracket lays entrants into the leaf round of a heap-ordered
// single-elimination tree.
func buildBracket(entrants []uuid.UUID) []BracketMatch {
	slots := 2
	for slots < len(entrants) {
		slots *= 2
	}

	total := slots - 1
	matches := make([]BracketMatch, total)
	rounds := 0
	for s := slots; s > 1; s /= 2 {
		rounds++
	}
	for i := range matches {
		matches[i].ID = uuid.New()
		// Node depth determines the round, counted from the final.
		depth := 0
		for n := i + 1; n > 1; n /= 2 {
			depth++
		}
		matches[i].Round = rounds - depth
	}

	firstLeaf := total / 2
	for i := 0; i < slots; i++ {
		leaf := &matches[firstLeaf+i/2]
		var player uuid.UUID
		if i < len(entrants) {
			player = entrants[i]
		}
		leaf.Players[i%2] = player
	}
	for i := firstLeaf; i < total; i++ {
		if matches[i].Players[0] == uuid.Nil || matches[i].Players[1] == uuid.Nil {
			matches[i].Bye = true
		}
	}
	return matches
}
