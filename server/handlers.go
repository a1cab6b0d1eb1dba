// server/handlers.go
package server

import (
	"strings"

	"github.com/google/uuid"

	"github.com/CodingInCarhartts/yum-osu/community"
	"github.com/CodingInCarhartts/yum-osu/logger"
	"github.com/CodingInCarhartts/yum-osu/network"
	"github.com/CodingInCarhartts/yum-osu/session"
	"github.com/CodingInCarhartts/yum-osu/state"
)

// --- auth ---

func (s *GameServer) handleRegister(sess *session.Session, env *network.Envelope) {
	var req network.RegisterRequest
	if err := env.Decode(&req); err != nil {
		s.sendError(sess, "bad_request", "malformed register payload")
		return
	}

	userID, err := s.accounts.Register(req.Username, req.Email, req.Password)
	if err != nil {
		_ = sess.Send(network.MustEnvelope(network.KindRegisterResponse, network.RegisterResponse{
			Success: false,
			Error:   errorCode(err),
		}))
		return
	}

	logger.Log.Infof("registered account %s (%s)", req.Username, userID)
	_ = sess.Send(network.MustEnvelope(network.KindRegisterResponse, network.RegisterResponse{
		Success: true,
		UserID:  userID,
	}))
}

func (s *GameServer) handleAuth(sess *session.Session, env *network.Envelope) {
	var req network.AuthRequest
	if err := env.Decode(&req); err != nil {
		s.sendError(sess, "bad_request", "malformed auth payload")
		return
	}

	fail := func(err error) {
		_ = sess.Send(network.MustEnvelope(network.KindAuthResponse, network.AuthResponse{
			Success: false,
			Error:   errorCode(err),
		}))
	}

	var token string
	if req.Token != "" {
		token = req.Token
	} else {
		issued, err := s.accounts.Authenticate(req.Username, req.Password)
		if err != nil {
			fail(err)
			return
		}
		token = issued
	}

	userID, err := s.accounts.Validate(token)
	if err != nil {
		fail(err)
		return
	}
	user, err := s.accounts.GetUser(userID)
	if err != nil {
		fail(err)
		return
	}

	sess.BindUser(userID, user.Username, token)
	logger.Log.Infof("session %s authenticated as %s", sess.GetID(), user.Username)

	_ = sess.Send(network.MustEnvelope(network.KindAuthResponse, network.AuthResponse{
		Success: true,
		Token:   token,
		UserID:  userID,
	}))
}

func (s *GameServer) handleLogout(sess *session.Session) {
	s.accounts.Revoke(sess.Token)
	if sess.RoomID != "" {
		s.handleLeaveRoom(sess)
	}
	sess.Close()
}

// --- rooms ---

func (s *GameServer) handleCreateRoom(sess *session.Session, env *network.Envelope) {
	var req network.CreateRoomRequest
	if err := env.Decode(&req); err != nil {
		s.sendError(sess, "bad_request", "malformed create_room payload")
		return
	}

	r, err := s.roomManager.CreateRoom(sess.UserID, sess.GetID(), sess.Username, req.Name, req.Capacity)
	if err != nil {
		s.sendDomainError(sess, err)
		return
	}
	if req.Song != "" {
		_ = r.SelectSong(sess.UserID, req.Song)
	}

	sess.RoomID = r.ID
	s.broadcastRoomState(r)
}

func (s *GameServer) handleJoinRoom(sess *session.Session, env *network.Envelope) {
	var req network.JoinRoomRequest
	if err := env.Decode(&req); err != nil {
		s.sendError(sess, "bad_request", "malformed join_room payload")
		return
	}

	r, err := s.roomManager.JoinRoom(req.RoomID, sess.UserID, sess.GetID(), sess.Username)
	if err != nil {
		s.sendDomainError(sess, err)
		return
	}

	sess.RoomID = r.ID
	s.broadcastRoomState(r)
}

func (s *GameServer) handleLeaveRoom(sess *session.Session) {
	if sess.RoomID == "" {
		s.sendError(sess, "room_not_found", "not in a room")
		return
	}

	r, err := s.roomManager.LeaveRoom(sess.RoomID, sess.UserID)
	sess.RoomID = ""
	if err != nil {
		s.sendDomainError(sess, err)
		return
	}
	if r != nil {
		s.broadcastRoomState(r)
	}
}

func (s *GameServer) handleListRooms(sess *session.Session) {
	_ = sess.Send(network.MustEnvelope(network.KindRoomList, network.RoomList{
		Rooms: s.roomManager.ListRooms(),
	}))
}

func (s *GameServer) handleSetReady(sess *session.Session, env *network.Envelope) {
	var req network.SetReadyRequest
	if err := env.Decode(&req); err != nil {
		s.sendError(sess, "bad_request", "malformed set_ready payload")
		return
	}

	r, ok := s.roomManager.GetRoom(sess.RoomID)
	if !ok {
		s.sendError(sess, "room_not_found", "not in a room")
		return
	}
	r.SetReady(sess.UserID, req.Ready)
	s.broadcastRoomState(r)
}

func (s *GameServer) handleSelectSong(sess *session.Session, env *network.Envelope) {
	var req network.SelectSongRequest
	if err := env.Decode(&req); err != nil {
		s.sendError(sess, "bad_request", "malformed select_song payload")
		return
	}

	r, ok := s.roomManager.GetRoom(sess.RoomID)
	if !ok {
		s.sendError(sess, "room_not_found", "not in a room")
		return
	}
	if err := r.SelectSong(sess.UserID, req.Song); err != nil {
		s.sendDomainError(sess, err)
		return
	}
	s.broadcastRoomState(r)
}

func (s *GameServer) handleStartMatch(sess *session.Session) {
	r, ok := s.roomManager.GetRoom(sess.RoomID)
	if !ok {
		s.sendError(sess, "room_not_found", "not in a room")
		return
	}
	if err := r.StartMatch(sess.UserID); err != nil {
		s.sendDomainError(sess, err)
	}
}

// --- gameplay ---

// handleGameEvent translates a wire event into a ledger event and feeds
// it to the room's current state. The server recomputes all scoring; the
// client's reported numbers only select the judgment tier.
func (s *GameServer) handleGameEvent(sess *session.Session, env *network.Envelope) {
	r, ok := s.roomManager.GetRoom(sess.RoomID)
	if !ok {
		s.sendError(sess, "room_not_found", "not in a room")
		return
	}

	ev := &state.MatchEvent{PlayerID: sess.UserID}

	switch env.Type {
	case network.KindHitEvent:
		var hit network.HitEvent
		if err := env.Decode(&hit); err != nil {
			s.sendError(sess, "bad_request", "malformed hit_event payload")
			return
		}
		ev.Kind = state.EventHit
		ev.CircleID = hit.CircleID
		ev.Tier = hit.ReportedScore
		ev.ClientTimestamp = hit.ClientTimestamp
	case network.KindMissEvent:
		var miss network.MissEvent
		if err := env.Decode(&miss); err != nil {
			s.sendError(sess, "bad_request", "malformed miss_event payload")
			return
		}
		ev.Kind = state.EventMiss
		ev.CircleID = miss.CircleID
		ev.ClientTimestamp = miss.ClientTimestamp
	case network.KindComboBreak:
		var cb network.ComboBreakEvent
		if err := env.Decode(&cb); err != nil {
			s.sendError(sess, "bad_request", "malformed combo_break payload")
			return
		}
		ev.Kind = state.EventComboBreak
		ev.ClientTimestamp = cb.ClientTimestamp
	case network.KindGameFinished:
		var fin network.GameFinished
		if err := env.Decode(&fin); err != nil {
			s.sendError(sess, "bad_request", "malformed game_finished payload")
			return
		}
		ev.Kind = state.EventFinished
		ev.ClientTimestamp = fin.ClientTimestamp
	}

	if err := r.HandleEvent(sess.UserID, ev); err != nil {
		s.sendDomainError(sess, err)
		return
	}
	s.monitor.IncEventsIngested()
}

// --- chat ---

func (s *GameServer) handleChat(sess *session.Session, env *network.Envelope) {
	var msg network.ChatMessage
	if err := env.Decode(&msg); err != nil || msg.Body == "" {
		s.sendError(sess, "bad_request", "malformed chat payload")
		return
	}

	if strings.HasPrefix(msg.Target, "user:") {
		s.handleDirectChat(sess, msg)
		return
	}

	// Room chat defaults to the sender's current room.
	target := msg.Target
	if target == "" {
		target = sess.RoomID
	}
	r, ok := s.roomManager.GetRoom(target)
	if !ok || !r.HasMember(sess.UserID) {
		s.sendError(sess, "room_not_found", "not in that room")
		return
	}

	stored := s.community.AppendMessage(sess.UserID, sess.Username, r.ID, msg.Body)
	out := network.MustEnvelope(network.KindChat, network.ChatMessage{
		Target:    r.ID,
		Body:      stored.Body,
		Timestamp: stored.Timestamp,
		SenderID:  stored.SenderID,
		Sender:    stored.SenderName,
	})
	_ = s.broadcaster.BroadcastToRoom(r.ID, out)
	s.monitor.IncBroadcasts()
}

func (s *GameServer) handleDirectChat(sess *session.Session, msg network.ChatMessage) {
	targetID, err := uuid.Parse(strings.TrimPrefix(msg.Target, "user:"))
	if err != nil {
		s.sendError(sess, "bad_request", "malformed direct chat target")
		return
	}

	key := community.DirectKey(sess.UserID, targetID)
	stored := s.community.AppendMessage(sess.UserID, sess.Username, key, msg.Body)
	out := network.MustEnvelope(network.KindChat, network.ChatMessage{
		Target:    msg.Target,
		Body:      stored.Body,
		Timestamp: stored.Timestamp,
		SenderID:  stored.SenderID,
		Sender:    stored.SenderName,
	})
	_ = s.broadcaster.BroadcastToUsers([]uuid.UUID{targetID, sess.UserID}, out)
}

// --- community ---

func (s *GameServer) handleFriendRequest(sess *session.Session, env *network.Envelope) {
	var req network.FriendRequest
	if err := env.Decode(&req); err != nil {
		s.sendError(sess, "bad_request", "malformed friend_request payload")
		return
	}

	target, err := s.accounts.GetUserByName(req.Username)
	if err != nil {
		s.sendDomainError(sess, err)
		return
	}
	if err := s.community.Request(sess.UserID, target.ID); err != nil {
		s.sendDomainError(sess, err)
		return
	}

	// Notify the target, if online.
	notify := network.MustEnvelope(network.KindFriendRequest, network.FriendRequest{
		Username: sess.Username,
	})
	_ = s.broadcaster.BroadcastToUsers([]uuid.UUID{target.ID}, notify)
	s.handleGetFriends(sess)
}

func (s *GameServer) handleFriendAccept(sess *session.Session, env *network.Envelope) {
	var req network.FriendDecision
	if err := env.Decode(&req); err != nil {
		s.sendError(sess, "bad_request", "malformed friend_accept payload")
		return
	}

	if err := s.community.Accept(sess.UserID, req.UserID); err != nil {
		s.sendDomainError(sess, err)
		return
	}
	s.handleGetFriends(sess)
}

func (s *GameServer) handleFriendBlock(sess *session.Session, env *network.Envelope) {
	var req network.FriendDecision
	if err := env.Decode(&req); err != nil {
		s.sendError(sess, "bad_request", "malformed friend_block payload")
		return
	}

	if err := s.community.Block(sess.UserID, req.UserID); err != nil {
		s.sendDomainError(sess, err)
		return
	}
	s.handleGetFriends(sess)
}

func (s *GameServer) handleGetFriends(sess *session.Session) {
	_ = sess.Send(network.MustEnvelope(network.KindFriendList, network.FriendList{
		Friends: s.community.FriendsOf(sess.UserID),
	}))
}

func (s *GameServer) handleLeaderboard(sess *session.Session, env *network.Envelope) {
	var req network.LeaderboardRequest
	if err := env.Decode(&req); err != nil {
		s.sendError(sess, "bad_request", "malformed leaderboard payload")
		return
	}

	result := s.community.Leaderboard(req.Scope, sess.UserID, req.Limit)
	_ = sess.Send(network.MustEnvelope(network.KindLeaderboardResult, result))
}

func (s *GameServer) handleAchievements(sess *session.Session) {
	_ = sess.Send(network.MustEnvelope(network.KindAchievementList, network.AchievementList{
		Achievements: s.community.AchievementsFor(sess.UserID),
	}))
}
