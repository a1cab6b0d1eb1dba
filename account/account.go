// account/account.go
package account

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDuplicateIdentity  = errors.New("username or email already taken")
	ErrWeakPassword       = errors.New("password does not meet minimum strength")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrUserNotFound       = errors.New("user not found")
)

// SessionTTL is the absolute lifetime of an auth session. Expiry is fixed
// at issue time; traffic never extends it.
const SessionTTL = 30 * 24 * time.Hour

// MinPasswordLength is the minimum-strength policy for new passwords.
const MinPasswordLength = 8

// User is an account record. Users are soft-disabled, never deleted.
type User struct {
	ID           uuid.UUID `json:"user_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Profile      Profile   `json:"profile"`
	Stats        Stats     `json:"stats"`
	CreatedAt    time.Time `json:"created_at"`
	LastLogin    time.Time `json:"last_login"`
	Disabled     bool      `json:"disabled"`
}

type Profile struct {
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Country     string `json:"country"`
}

// Stats are lifetime aggregates, updated on match completion.
type Stats struct {
	TotalScore    int64   `json:"total_score"`
	PlayCount     int     `json:"play_count"`
	BestAccuracy  float64 `json:"best_accuracy"`
	BestCombo     int     `json:"best_combo"`
	PlayTimeSec   int64   `json:"play_time_seconds"`
	PerfectHits   int     `json:"perfect_hits"`
	GoodHits      int     `json:"good_hits"`
	OKHits        int     `json:"ok_hits"`
	Misses        int     `json:"misses"`
	MatchesWon    int     `json:"matches_won"`
	FlawlessGames int     `json:"flawless_games"`
}

// AuthSession is a time-bounded authentication grant tied to one login.
// A user may hold several at once (multi-device).
type AuthSession struct {
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	LastSeen  time.Time `json:"last_seen"`
}

func (s *AuthSession) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// MatchResult is one participant's outcome, applied to aggregates.
type MatchResult struct {
	Score       int64
	Accuracy    float64
	MaxCombo    int
	Perfect     int
	Good        int
	OK          int
	Misses      int
	Won         bool
	PlayTimeSec int64
}
