package network

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is carried in every envelope. Field names are stable
// across versions; new versions may only add fields.
const ProtocolVersion = 1

// Message kinds, client to server.
const (
	KindHeartbeat     = "heartbeat"
	KindRegister      = "register"
	KindAuth          = "auth"
	KindLogout        = "logout"
	KindCreateRoom    = "create_room"
	KindJoinRoom      = "join_room"
	KindLeaveRoom     = "leave_room"
	KindListRooms     = "list_rooms"
	KindSetReady      = "set_ready"
	KindSelectSong    = "select_song"
	KindStartMatch    = "start_match"
	KindHitEvent      = "hit_event"
	KindMissEvent     = "miss_event"
	KindComboBreak    = "combo_break"
	KindGameFinished  = "game_finished"
	KindChat          = "chat"
	KindFriendRequest = "friend_request"
	KindFriendAccept  = "friend_accept"
	KindFriendBlock   = "friend_block"
	KindGetFriends    = "get_friends"
	KindLeaderboard   = "get_leaderboard"
	KindAchievements  = "get_achievements"
)

// Message kinds, server to client.
const (
	KindRegisterResponse    = "register_response"
	KindAuthResponse        = "auth_response"
	KindRoomState           = "room_state"
	KindRoomList            = "room_list"
	KindStartGame           = "start_game"
	KindStateUpdate         = "state_update"
	KindMatchEnd            = "match_end"
	KindLeaderboardResult   = "leaderboard"
	KindFriendList          = "friends"
	KindAchievementList     = "achievements"
	KindAchievementUnlocked = "achievement_unlocked"
	KindError               = "error"
)

// Envelope is the tagged, versioned frame every message travels in.
type Envelope struct {
	Version int             `json:"v"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into a versioned envelope.
func NewEnvelope(kind string, payload interface{}) (*Envelope, error) {
	env := &Envelope{Version: ProtocolVersion, Type: kind}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return env, nil
}

// MustEnvelope is NewEnvelope for payloads the server itself constructs,
// which cannot fail to marshal.
func MustEnvelope(kind string, payload interface{}) *Envelope {
	env, err := NewEnvelope(kind, payload)
	if err != nil {
		panic("network: marshal of server payload failed: " + err.Error())
	}
	return env
}

// Decode unmarshals the envelope payload into v.
func (e *Envelope) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// --- client to server payloads ---

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthRequest carries either credentials or a previously issued token.
// A non-empty token takes precedence.
type AuthRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

type LogoutRequest struct {
	Token string `json:"token"`
}

type CreateRoomRequest struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Song     string `json:"song,omitempty"`
}

type JoinRoomRequest struct {
	RoomID string `json:"room_id"`
}

type LeaveRoomRequest struct {
	RoomID string `json:"room_id"`
}

type SetReadyRequest struct {
	Ready bool `json:"ready"`
}

type SelectSongRequest struct {
	Song string `json:"song"`
}

type HitEvent struct {
	CircleID        uint32  `json:"circle_id"`
	ClientTimestamp float64 `json:"client_timestamp"`
	ReportedScore   int     `json:"reported_score"`
}

type MissEvent struct {
	CircleID        uint32  `json:"circle_id"`
	ClientTimestamp float64 `json:"client_timestamp"`
}

type ComboBreakEvent struct {
	ClientTimestamp float64 `json:"client_timestamp"`
}

type GameFinished struct {
	FinalScore      int64   `json:"final_score"`
	FinalAccuracy   float64 `json:"final_accuracy"`
	ClientTimestamp float64 `json:"client_timestamp"`
}

type ChatMessage struct {
	Target    string    `json:"target"` // room id, or "user:<uuid>" for direct
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	SenderID  uuid.UUID `json:"sender_id,omitempty"`
	Sender    string    `json:"sender,omitempty"`
}

type FriendRequest struct {
	Username string `json:"username"`
}

type FriendDecision struct {
	UserID uuid.UUID `json:"user_id"`
}

type LeaderboardRequest struct {
	Scope string `json:"scope"` // global, country, friends
	Limit int    `json:"limit,omitempty"`
}

// --- server to client payloads ---

type RegisterResponse struct {
	Success bool      `json:"success"`
	UserID  uuid.UUID `json:"user_id,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type AuthResponse struct {
	Success bool      `json:"success"`
	Token   string    `json:"token,omitempty"`
	UserID  uuid.UUID `json:"user_id,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type RoomMemberInfo struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Ready    bool      `json:"ready"`
}

type RoomStateUpdate struct {
	RoomID  string           `json:"room_id"`
	Name    string           `json:"name"`
	HostID  uuid.UUID        `json:"host_id"`
	Song    string           `json:"song,omitempty"`
	State   string           `json:"state"`
	Members []RoomMemberInfo `json:"members"`
}

type RoomSummary struct {
	RoomID   string `json:"room_id"`
	Name     string `json:"name"`
	Song     string `json:"song,omitempty"`
	State    string `json:"state"`
	Members  int    `json:"members"`
	Capacity int    `json:"capacity"`
}

type RoomList struct {
	Rooms []RoomSummary `json:"rooms"`
}

type StartGame struct {
	RoomID      string `json:"room_id"`
	Seed        uint64 `json:"seed"`
	CountdownMS int64  `json:"countdown_ms"`
	Song        string `json:"song"`
}

type PlayerSnapshot struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Score    int64     `json:"score"`
	Combo    int       `json:"combo"`
	MaxCombo int       `json:"max_combo"`
	Accuracy float64   `json:"accuracy"`
	Health   float64   `json:"health"`
	Finished bool      `json:"finished"`
}

type StateUpdate struct {
	RoomID  string           `json:"room_id"`
	Players []PlayerSnapshot `json:"players"`
}

type RankedPlayer struct {
	Rank     int       `json:"rank"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Score    int64     `json:"score"`
	Accuracy float64   `json:"accuracy"`
	MaxCombo int       `json:"max_combo"`
}

type MatchEnd struct {
	RoomID   string         `json:"room_id"`
	Ranking  []RankedPlayer `json:"ranking"`
	WinnerID uuid.UUID      `json:"winner_id"`
}

type LeaderboardEntry struct {
	Rank     int       `json:"rank"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Score    int64     `json:"score"`
	Accuracy float64   `json:"accuracy"`
}

type LeaderboardResult struct {
	Scope   string             `json:"scope"`
	Entries []LeaderboardEntry `json:"entries"`
}

type FriendInfo struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Status   string    `json:"status"`
}

type FriendList struct {
	Friends []FriendInfo `json:"friends"`
}

type AchievementInfo struct {
	Key         string     `json:"key"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
}

type AchievementList struct {
	Achievements []AchievementInfo `json:"achievements"`
}

type AchievementUnlocked struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
