package server

import (
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodingInCarhartts/yum-osu/config"
	"github.com/CodingInCarhartts/yum-osu/logger"
	"github.com/CodingInCarhartts/yum-osu/network"
	"github.com/CodingInCarhartts/yum-osu/persistence"
	"github.com/CodingInCarhartts/yum-osu/session"
	"github.com/CodingInCarhartts/yum-osu/state"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

// MockConnection records everything the server pushes to the client.
// Broadcasts arrive from the room ticker goroutine, so access is locked.
type MockConnection struct {
	mutex sync.Mutex
	sent  []*network.Envelope
}

func (m *MockConnection) Send(env *network.Envelope) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sent = append(m.sent, env)
	return nil
}

func (m *MockConnection) Close() error                             { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                     { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)      {}
func (m *MockConnection) ReadEnvelope() (*network.Envelope, error) { return nil, io.EOF }

func (m *MockConnection) countOf(kind string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	n := 0
	for _, env := range m.sent {
		if env.Type == kind {
			n++
		}
	}
	return n
}

func (m *MockConnection) lastOf(kind string) (*network.Envelope, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Type == kind {
			return m.sent[i], true
		}
	}
	return nil, false
}

func decodeLast(t *testing.T, conn *MockConnection, kind string, v interface{}) {
	t.Helper()
	env, ok := conn.lastOf(kind)
	require.True(t, ok, "no %q envelope was sent", kind)
	require.NoError(t, env.Decode(v))
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

// Prometheus collectors and the RPC service register globally, so the
// whole package shares one server instance.
var (
	testSrvOnce sync.Once
	testSrv     *GameServer
	testSrvErr  error
)

func testServer(t *testing.T) *GameServer {
	t.Helper()
	testSrvOnce.Do(func() {
		dir, err := os.MkdirTemp("", "yumosu-server-test")
		if err != nil {
			testSrvErr = err
			return
		}
		store, err := persistence.NewFileStore(dir)
		if err != nil {
			testSrvErr = err
			return
		}
		cfg := &config.Config{
			Server: config.ServerConfig{
				HTTPAddress:    "127.0.0.1:0",
				RPCAddress:     "127.0.0.1:0",
				MetricsAddress: "127.0.0.1:0",
			},
			Game: config.GameConfig{
				HeartbeatTimeout: 30 * time.Second,
				GraceWindow:      time.Hour,
				Countdown:        20 * time.Millisecond,
				SyncInterval:     30 * time.Millisecond,
				ChatHistoryLimit: 50,
			},
		}
		testSrv, testSrvErr = NewGameServer(cfg, store)
	})
	require.NoError(t, testSrvErr)
	return testSrv
}

func connect(t *testing.T, s *GameServer) (*session.Session, *MockConnection) {
	t.Helper()
	conn := &MockConnection{}
	sess := session.NewSession(uuid.New().String(), conn)
	s.sessionManager.Add(sess)
	t.Cleanup(func() {
		s.sessionManager.Remove(sess.GetID())
		s.handleDisconnect(sess)
	})
	return sess, conn
}

// login registers a fresh account and authenticates the session with it.
func login(t *testing.T, s *GameServer, username string) (*session.Session, *MockConnection) {
	t.Helper()
	sess, conn := connect(t, s)

	s.dispatch(sess, network.MustEnvelope(network.KindRegister, network.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "correct horse battery",
	}))
	var reg network.RegisterResponse
	decodeLast(t, conn, network.KindRegisterResponse, &reg)
	require.True(t, reg.Success, "register failed: %s", reg.Error)

	s.dispatch(sess, network.MustEnvelope(network.KindAuth, network.AuthRequest{
		Username: username,
		Password: "correct horse battery",
	}))
	var auth network.AuthResponse
	decodeLast(t, conn, network.KindAuthResponse, &auth)
	require.True(t, auth.Success, "auth failed: %s", auth.Error)
	require.NotEmpty(t, auth.Token)

	return sess, conn
}

func TestDispatch_RequiresAuthentication(t *testing.T) {
	s := testServer(t)
	sess, conn := connect(t, s)

	// Heartbeats pass through without an identity.
	s.dispatch(sess, network.MustEnvelope(network.KindHeartbeat, nil))
	assert.Equal(t, 0, conn.countOf(network.KindError))

	s.dispatch(sess, network.MustEnvelope(network.KindListRooms, nil))
	var errMsg network.ErrorMessage
	decodeLast(t, conn, network.KindError, &errMsg)
	assert.Equal(t, "session_unknown", errMsg.Code)
}

func TestDispatch_UnknownKind(t *testing.T) {
	s := testServer(t)
	sess, conn := login(t, s, "dispatch_unknown")

	s.dispatch(sess, network.MustEnvelope("time_travel", nil))
	var errMsg network.ErrorMessage
	decodeLast(t, conn, network.KindError, &errMsg)
	assert.Equal(t, "bad_request", errMsg.Code)
}

func TestAuth_WrongPassword(t *testing.T) {
	s := testServer(t)
	login(t, s, "auth_victim")

	sess, conn := connect(t, s)
	s.dispatch(sess, network.MustEnvelope(network.KindAuth, network.AuthRequest{
		Username: "auth_victim",
		Password: "not the password",
	}))
	var auth network.AuthResponse
	decodeLast(t, conn, network.KindAuthResponse, &auth)
	assert.False(t, auth.Success)
	assert.Equal(t, "auth_failed", auth.Error)
	assert.False(t, sess.Authenticated())
}

func TestAuth_TokenResume(t *testing.T) {
	s := testServer(t)
	first, firstConn := login(t, s, "token_resume")

	var issued network.AuthResponse
	decodeLast(t, firstConn, network.KindAuthResponse, &issued)

	// A second connection presents the token instead of credentials.
	second, secondConn := connect(t, s)
	s.dispatch(second, network.MustEnvelope(network.KindAuth, network.AuthRequest{
		Token: issued.Token,
	}))

	var resumed network.AuthResponse
	decodeLast(t, secondConn, network.KindAuthResponse, &resumed)
	require.True(t, resumed.Success, "token resume failed: %s", resumed.Error)
	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, "token_resume", second.Username)
}

func TestMatchFlow_EndToEnd(t *testing.T) {
	s := testServer(t)
	alice, aliceConn := login(t, s, "match_alice")
	bob, bobConn := login(t, s, "match_bob")

	s.dispatch(alice, network.MustEnvelope(network.KindCreateRoom, network.CreateRoomRequest{
		Name:     "duel",
		Capacity: 2,
		Song:     "freedom-dive",
	}))
	var roomState network.RoomStateUpdate
	decodeLast(t, aliceConn, network.KindRoomState, &roomState)
	require.NotEmpty(t, roomState.RoomID)
	assert.Equal(t, "freedom-dive", roomState.Song)
	roomID := roomState.RoomID

	s.dispatch(bob, network.MustEnvelope(network.KindJoinRoom, network.JoinRoomRequest{RoomID: roomID}))
	decodeLast(t, bobConn, network.KindRoomState, &roomState)
	require.Len(t, roomState.Members, 2)

	s.dispatch(alice, network.MustEnvelope(network.KindSetReady, network.SetReadyRequest{Ready: true}))
	s.dispatch(bob, network.MustEnvelope(network.KindSetReady, network.SetReadyRequest{Ready: true}))
	s.dispatch(alice, network.MustEnvelope(network.KindStartMatch, nil))

	r, ok := s.roomManager.GetRoom(roomID)
	require.True(t, ok)
	waitFor(t, func() bool { return r.Status() == state.StatePlaying }, "match never reached the playing state")

	// Every member saw the shared countdown.
	waitFor(t, func() bool {
		return aliceConn.countOf(network.KindStartGame) == 1 && bobConn.countOf(network.KindStartGame) == 1
	}, "start_game was not broadcast to every member")
	var start network.StartGame
	decodeLast(t, aliceConn, network.KindStartGame, &start)
	assert.Equal(t, roomID, start.RoomID)
	assert.Equal(t, "freedom-dive", start.Song)

	// Alice lands two perfects, bob one; both finish cleanly.
	s.dispatch(alice, network.MustEnvelope(network.KindHitEvent, network.HitEvent{CircleID: 1, ReportedScore: 300, ClientTimestamp: 100}))
	s.dispatch(alice, network.MustEnvelope(network.KindHitEvent, network.HitEvent{CircleID: 2, ReportedScore: 300, ClientTimestamp: 200}))
	s.dispatch(bob, network.MustEnvelope(network.KindHitEvent, network.HitEvent{CircleID: 1, ReportedScore: 300, ClientTimestamp: 150}))
	s.dispatch(alice, network.MustEnvelope(network.KindGameFinished, network.GameFinished{ClientTimestamp: 300}))
	s.dispatch(bob, network.MustEnvelope(network.KindGameFinished, network.GameFinished{ClientTimestamp: 350}))

	waitFor(t, func() bool {
		return aliceConn.countOf(network.KindMatchEnd) >= 1 && bobConn.countOf(network.KindMatchEnd) >= 1
	}, "match_end was not broadcast to every member")
	waitFor(t, func() bool { return r.Status() == state.StateLobby }, "room never returned to the lobby")

	// The ranking goes out exactly once per member.
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 1, aliceConn.countOf(network.KindMatchEnd))
	assert.Equal(t, 1, bobConn.countOf(network.KindMatchEnd))

	var end network.MatchEnd
	decodeLast(t, aliceConn, network.KindMatchEnd, &end)
	assert.Equal(t, roomID, end.RoomID)
	require.Len(t, end.Ranking, 2)
	assert.Equal(t, alice.UserID, end.WinnerID)
	assert.Equal(t, 1, end.Ranking[0].Rank)
	assert.Equal(t, alice.UserID, end.Ranking[0].UserID)
	assert.Equal(t, int64(600), end.Ranking[0].Score)
	assert.Equal(t, int64(300), end.Ranking[1].Score)

	// Results were folded into the community layer.
	waitFor(t, func() bool {
		return aliceConn.countOf(network.KindAchievementUnlocked) >= 1
	}, "no achievement was announced to the winner")
	env, _ := aliceConn.lastOf(network.KindAchievementUnlocked)
	var unlocked network.AchievementUnlocked
	require.NoError(t, env.Decode(&unlocked))
	assert.NotEmpty(t, unlocked.Key)

	s.dispatch(alice, network.MustEnvelope(network.KindLeaderboard, network.LeaderboardRequest{Scope: "global", Limit: 10}))
	var board network.LeaderboardResult
	decodeLast(t, aliceConn, network.KindLeaderboardResult, &board)
	require.NotEmpty(t, board.Entries)
	found := false
	for _, e := range board.Entries {
		if e.UserID == alice.UserID {
			found = true
			assert.GreaterOrEqual(t, e.Score, int64(600))
		}
	}
	assert.True(t, found, "winner missing from the global leaderboard")

	s.dispatch(alice, network.MustEnvelope(network.KindAchievements, nil))
	var list network.AchievementList
	decodeLast(t, aliceConn, network.KindAchievementList, &list)
	require.NotEmpty(t, list.Achievements)
	firstMatchDone := false
	for _, a := range list.Achievements {
		if a.Key == "first_match" {
			firstMatchDone = a.UnlockedAt != nil
		}
	}
	assert.True(t, firstMatchDone, "first_match should be unlocked after a completed match")
}

func TestChat_RoomAndDirect(t *testing.T) {
	s := testServer(t)
	alice, aliceConn := login(t, s, "chat_alice")
	bob, bobConn := login(t, s, "chat_bob")

	s.dispatch(alice, network.MustEnvelope(network.KindCreateRoom, network.CreateRoomRequest{
		Name:     "chatter",
		Capacity: 4,
	}))
	var roomState network.RoomStateUpdate
	decodeLast(t, aliceConn, network.KindRoomState, &roomState)
	s.dispatch(bob, network.MustEnvelope(network.KindJoinRoom, network.JoinRoomRequest{RoomID: roomState.RoomID}))

	// An empty target addresses the sender's current room.
	s.dispatch(alice, network.MustEnvelope(network.KindChat, network.ChatMessage{Body: "glhf"}))
	var got network.ChatMessage
	decodeLast(t, bobConn, network.KindChat, &got)
	assert.Equal(t, "glhf", got.Body)
	assert.Equal(t, "chat_alice", got.Sender)
	assert.Equal(t, alice.UserID, got.SenderID)
	assert.Equal(t, 1, aliceConn.countOf(network.KindChat))

	// Direct messages reach both ends regardless of rooms.
	s.dispatch(bob, network.MustEnvelope(network.KindChat, network.ChatMessage{
		Target: "user:" + alice.UserID.String(),
		Body:   "gg",
	}))
	decodeLast(t, aliceConn, network.KindChat, &got)
	assert.Equal(t, "gg", got.Body)
	assert.Equal(t, bob.UserID, got.SenderID)

	// Chatting into a room the sender is not a member of is refused.
	outsider, outsiderConn := login(t, s, "chat_outsider")
	s.dispatch(outsider, network.MustEnvelope(network.KindChat, network.ChatMessage{
		Target: roomState.RoomID,
		Body:   "let me in",
	}))
	var errMsg network.ErrorMessage
	decodeLast(t, outsiderConn, network.KindError, &errMsg)
	assert.Equal(t, "room_not_found", errMsg.Code)
}

func TestFriendFlow(t *testing.T) {
	s := testServer(t)
	carol, carolConn := login(t, s, "friend_carol")
	dave, daveConn := login(t, s, "friend_dave")

	s.dispatch(carol, network.MustEnvelope(network.KindFriendRequest, network.FriendRequest{
		Username: "friend_dave",
	}))

	// The target is notified while online.
	var notify network.FriendRequest
	decodeLast(t, daveConn, network.KindFriendRequest, &notify)
	assert.Equal(t, "friend_carol", notify.Username)

	var carolFriends network.FriendList
	decodeLast(t, carolConn, network.KindFriendList, &carolFriends)
	require.Len(t, carolFriends.Friends, 1)
	assert.Equal(t, "pending", carolFriends.Friends[0].Status)

	s.dispatch(dave, network.MustEnvelope(network.KindFriendAccept, network.FriendDecision{
		UserID: carol.UserID,
	}))
	var daveFriends network.FriendList
	decodeLast(t, daveConn, network.KindFriendList, &daveFriends)
	require.Len(t, daveFriends.Friends, 1)
	assert.Equal(t, carol.UserID, daveFriends.Friends[0].UserID)
	assert.Equal(t, "accepted", daveFriends.Friends[0].Status)

	s.dispatch(carol, network.MustEnvelope(network.KindGetFriends, nil))
	decodeLast(t, carolConn, network.KindFriendList, &carolFriends)
	require.Len(t, carolFriends.Friends, 1)
	assert.Equal(t, "accepted", carolFriends.Friends[0].Status)
}

func TestLogout_RevokesToken(t *testing.T) {
	s := testServer(t)
	sess, conn := login(t, s, "logout_user")

	var auth network.AuthResponse
	decodeLast(t, conn, network.KindAuthResponse, &auth)

	s.dispatch(sess, network.MustEnvelope(network.KindLogout, nil))

	// The revoked token no longer resumes a session.
	other, otherConn := connect(t, s)
	s.dispatch(other, network.MustEnvelope(network.KindAuth, network.AuthRequest{Token: auth.Token}))
	var resumed network.AuthResponse
	decodeLast(t, otherConn, network.KindAuthResponse, &resumed)
	assert.False(t, resumed.Success)
}

func TestDisconnect_MidLobbyFreesSeat(t *testing.T) {
	s := testServer(t)
	alice, aliceConn := login(t, s, "drop_alice")
	bob, _ := login(t, s, "drop_bob")

	s.dispatch(alice, network.MustEnvelope(network.KindCreateRoom, network.CreateRoomRequest{
		Name:     "fragile",
		Capacity: 2,
	}))
	var roomState network.RoomStateUpdate
	decodeLast(t, aliceConn, network.KindRoomState, &roomState)
	s.dispatch(bob, network.MustEnvelope(network.KindJoinRoom, network.JoinRoomRequest{RoomID: roomState.RoomID}))

	// Bob's connection drops; the lobby seat is released immediately.
	s.sessionManager.Remove(bob.GetID())
	s.handleDisconnect(bob)

	r, ok := s.roomManager.GetRoom(roomState.RoomID)
	require.True(t, ok)
	payload := r.StatePayload()
	require.Len(t, payload.Members, 1)
	assert.Equal(t, alice.UserID, payload.Members[0].UserID)

	// Alice saw the updated room state.
	decodeLast(t, aliceConn, network.KindRoomState, &roomState)
	assert.Len(t, roomState.Members, 1)
}
