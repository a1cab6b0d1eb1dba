// account/store.go
package account

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store owns the user and auth-session tables. All access goes through its
// lock; nothing here waits on the network.
type Store struct {
	users    map[uuid.UUID]*User
	byName   map[string]uuid.UUID // lowercased username
	byEmail  map[string]uuid.UUID // lowercased email
	sessions map[string]*AuthSession
	mutex    sync.RWMutex

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:    make(map[uuid.UUID]*User),
		byName:   make(map[string]uuid.UUID),
		byEmail:  make(map[string]uuid.UUID),
		sessions: make(map[string]*AuthSession),
		now:      time.Now,
	}
}

// Register creates a user. The plaintext password is hashed before any
// state is touched and discarded with the call frame.
func (s *Store) Register(username, email, password string) (uuid.UUID, error) {
	if len(password) < MinPasswordLength {
		return uuid.Nil, ErrWeakPassword
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return uuid.Nil, ErrDuplicateIdentity
	}

	hash, err := HashPassword(password)
	if err != nil {
		return uuid.Nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	nameKey := strings.ToLower(username)
	emailKey := strings.ToLower(email)
	if _, taken := s.byName[nameKey]; taken {
		return uuid.Nil, ErrDuplicateIdentity
	}
	if _, taken := s.byEmail[emailKey]; emailKey != "" && taken {
		return uuid.Nil, ErrDuplicateIdentity
	}

	user := &User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Profile:      Profile{DisplayName: username, Country: "Unknown"},
		CreatedAt:    s.now(),
	}
	s.users[user.ID] = user
	s.byName[nameKey] = user.ID
	if emailKey != "" {
		s.byEmail[emailKey] = user.ID
	}
	return user.ID, nil
}

// Authenticate verifies credentials and issues a fresh session token.
func (s *Store) Authenticate(username, password string) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id, ok := s.byName[strings.ToLower(username)]
	if !ok {
		// Burn a hash anyway so unknown names cost the same as bad passwords.
		VerifyPassword("$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", password)
		return "", ErrInvalidCredentials
	}
	user := s.users[id]
	if !VerifyPassword(user.PasswordHash, password) {
		return "", ErrInvalidCredentials
	}
	if user.Disabled {
		return "", ErrAccountDisabled
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}
	now := s.now()
	s.sessions[token] = &AuthSession{
		Token:     token,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(SessionTTL),
		LastSeen:  now,
	}
	user.LastLogin = now
	return token, nil
}

// Validate resolves a token to a user id. LastSeen is refreshed as
// telemetry; the absolute expiry never moves.
func (s *Store) Validate(token string) (uuid.UUID, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return uuid.Nil, ErrSessionNotFound
	}
	if sess.ExpiredAt(s.now()) {
		delete(s.sessions, token)
		return uuid.Nil, ErrSessionExpired
	}
	sess.LastSeen = s.now()
	return sess.UserID, nil
}

// Revoke invalidates a token. Revoking an unknown token is not an error.
func (s *Store) Revoke(token string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.sessions, token)
}

// RevokeAllForUser drops every session a user holds, e.g. after a
// password change.
func (s *Store) RevokeAllForUser(userID uuid.UUID) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for token, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, token)
		}
	}
}

// ChangePassword rehashes the credential and invalidates all sessions.
func (s *Store) ChangePassword(userID uuid.UUID, oldPassword, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	if !VerifyPassword(user.PasswordHash, oldPassword) {
		return ErrInvalidCredentials
	}
	user.PasswordHash = hash
	for token, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, token)
		}
	}
	return nil
}

func (s *Store) UpdateProfile(userID uuid.UUID, profile Profile) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.Profile = profile
	return nil
}

// Disable soft-deletes an account and revokes its sessions.
func (s *Store) Disable(userID uuid.UUID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.Disabled = true
	for token, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, token)
		}
	}
	return nil
}

// RecordMatch folds one finished match into the user's aggregates.
func (s *Store) RecordMatch(userID uuid.UUID, result MatchResult) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}

	st := &user.Stats
	st.TotalScore += result.Score
	st.PlayCount++
	if result.Accuracy > st.BestAccuracy {
		st.BestAccuracy = result.Accuracy
	}
	if result.MaxCombo > st.BestCombo {
		st.BestCombo = result.MaxCombo
	}
	st.PlayTimeSec += result.PlayTimeSec
	st.PerfectHits += result.Perfect
	st.GoodHits += result.Good
	st.OKHits += result.OK
	st.Misses += result.Misses
	if result.Won {
		st.MatchesWon++
	}
	if result.Misses == 0 && result.Accuracy >= 100.0 {
		st.FlawlessGames++
	}
	return nil
}

func (s *Store) GetUser(userID uuid.UUID) (User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return *user, nil
}

func (s *Store) GetUserByName(username string) (User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	id, ok := s.byName[strings.ToLower(username)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return *s.users[id], nil
}

// Users returns a copy of every enabled user record, for derived reads
// such as leaderboards.
func (s *Store) Users() []User {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		if !u.Disabled {
			out = append(out, *u)
		}
	}
	return out
}

// SweepExpired drops expired sessions. Driven by the timer manager.
func (s *Store) SweepExpired() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	now := s.now()
	removed := 0
	for token, sess := range s.sessions {
		if sess.ExpiredAt(now) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// Export snapshots both tables for persistence.
func (s *Store) Export() ([]User, []AuthSession) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	users := make([]User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, *u)
	}
	sessions := make([]AuthSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, *sess)
	}
	return users, sessions
}

// Restore replaces both tables from a persisted snapshot.
func (s *Store) Restore(users []User, sessions []AuthSession) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.users = make(map[uuid.UUID]*User, len(users))
	s.byName = make(map[string]uuid.UUID, len(users))
	s.byEmail = make(map[string]uuid.UUID, len(users))
	for i := range users {
		u := users[i]
		s.users[u.ID] = &u
		s.byName[strings.ToLower(u.Username)] = u.ID
		if u.Email != "" {
			s.byEmail[strings.ToLower(u.Email)] = u.ID
		}
	}
	s.sessions = make(map[string]*AuthSession, len(sessions))
	for i := range sessions {
		sess := sessions[i]
		s.sessions[sess.Token] = &sess
	}
}
