// server/server.go
package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/CodingInCarhartts/yum-osu/account"
	"github.com/CodingInCarhartts/yum-osu/broadcast"
	"github.com/CodingInCarhartts/yum-osu/community"
	"github.com/CodingInCarhartts/yum-osu/config"
	"github.com/CodingInCarhartts/yum-osu/logger"
	"github.com/CodingInCarhartts/yum-osu/monitor"
	"github.com/CodingInCarhartts/yum-osu/network"
	"github.com/CodingInCarhartts/yum-osu/persistence"
	"github.com/CodingInCarhartts/yum-osu/room"
	yumosu_rpc "github.com/CodingInCarhartts/yum-osu/rpc"
	"github.com/CodingInCarhartts/yum-osu/services"
	"github.com/CodingInCarhartts/yum-osu/session"
	"github.com/CodingInCarhartts/yum-osu/state"
	"github.com/CodingInCarhartts/yum-osu/timer"
)

// GameServer is the composition root: it owns the stores and managers,
// accepts websocket connections and routes every envelope to a handler.
type GameServer struct {
	cfg      *config.Config
	upgrader websocket.Upgrader

	accounts       *account.Store
	community      *community.Manager
	roomManager    *room.Manager
	sessionManager *session.Manager
	broadcaster    broadcast.Broadcaster
	stats          *services.StatsService
	store          persistence.Store
	rpcServer      *yumosu_rpc.Server
	monitor        *monitor.Monitor
	timers         *timer.Manager

	httpServer   *http.Server
	shutdownChan chan struct{}
}

func NewGameServer(cfg *config.Config, store persistence.Store) (*GameServer, error) {
	accounts := account.NewStore()
	comm := community.NewManager(accounts, cfg.Game.ChatHistoryLimit)

	if snap, err := store.Load(); err != nil {
		return nil, err
	} else {
		accounts.Restore(snap.Users, snap.Sessions)
		comm.Restore(snap.Community)
	}

	matchCfg := state.MatchConfig{
		Countdown:    cfg.Game.Countdown,
		SyncInterval: cfg.Game.SyncInterval,
		GraceWindow:  cfg.Game.GraceWindow,
	}

	s := &GameServer{
		cfg:            cfg,
		accounts:       accounts,
		community:      comm,
		roomManager:    room.NewManager(matchCfg),
		sessionManager: session.NewManager(),
		store:          store,
		monitor:        monitor.NewMonitor("yumosu"),
		timers:         timer.NewManager(),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.stats = services.NewStatsService(accounts, comm, store)

	s.broadcaster = broadcast.NewRoomBroadcaster(s.roomManager, s.sessionManager)
	s.roomManager.SetBroadcaster(s.broadcaster)
	s.roomManager.SetResultSink(s.onMatchFinished)

	rpcServer, err := yumosu_rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		return nil, err
	}
	s.rpcServer = rpcServer

	admin := yumosu_rpc.NewAdminService(s.stats, s.roomManager, s.sessionManager)
	if err := admin.Register(); err != nil {
		return nil, err
	}

	s.scheduleMaintenance()

	return s, nil
}

func (s *GameServer) Start() error {
	go s.rpcServer.Start()
	s.monitor.StartServer(s.cfg.Server.MetricsAddress)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.httpServer = &http.Server{Addr: s.cfg.Server.HTTPAddress, Handler: mux}

	logger.Log.Infof("game server listening on %s", s.cfg.Server.HTTPAddress)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting work, winds down rooms and flushes the
// snapshot so nothing authoritative is lost.
func (s *GameServer) Shutdown() {
	close(s.shutdownChan)
	s.timers.Stop()
	if s.httpServer != nil {
		s.httpServer.Close()
	}
	s.rpcServer.Stop()
	s.roomManager.CloseAll()

	if err := s.saveSnapshot(); err != nil {
		logger.Log.Errorf("failed to save snapshot on shutdown: %v", err)
	}
}

func (s *GameServer) scheduleMaintenance() {
	// Expired auth sessions are advisory until touched, sweeping keeps the
	// table small.
	s.timers.Schedule(time.Hour, time.Hour, func() {
		if n := s.accounts.SweepExpired(); n > 0 {
			logger.Log.Infof("swept %d expired auth sessions", n)
		}
	})

	s.timers.Schedule(5*time.Minute, 5*time.Minute, func() {
		if err := s.saveSnapshot(); err != nil {
			logger.Log.Errorf("periodic snapshot failed: %v", err)
		}
	})

	s.timers.Schedule(15*time.Second, 15*time.Second, func() {
		rooms := s.roomManager.ListRooms()
		playing := 0
		for _, r := range rooms {
			if r.State == state.StatePlaying {
				playing++
			}
		}
		s.monitor.SetActiveRooms(len(rooms))
		s.monitor.SetMatchesRunning(playing)
	})
}

func (s *GameServer) saveSnapshot() error {
	users, sessions := s.accounts.Export()
	snap := &persistence.Snapshot{
		Users:     users,
		Sessions:  sessions,
		Community: s.community.Export(),
	}
	return s.store.Save(snap)
}

// onMatchFinished is the result sink wired into every room. Rankings are
// already authoritative; this folds them into accounts and announces any
// achievements they unlocked.
func (s *GameServer) onMatchFinished(roomID, song string, results []state.PlayerResult) {
	grants := s.stats.ApplyResults(roomID, song, results)
	for _, g := range grants {
		for _, a := range g.Achievements {
			env := network.MustEnvelope(network.KindAchievementUnlocked, network.AchievementUnlocked{
				Key:  a.Key,
				Name: a.Name,
			})
			_ = s.broadcaster.BroadcastToUsers([]uuid.UUID{g.UserID}, env)
		}
	}
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(s.cfg.Game.HeartbeatTimeout)

	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	logger.Log.Infof("new connection from %s, session %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("connection closed from %s, session %s", wsConn.RemoteAddr(), sess.GetID())
		s.monitor.DecOnlinePlayers()
		s.sessionManager.Remove(sess.GetID())
		s.handleDisconnect(sess)
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			env, err := wsConn.ReadEnvelope()
			if err != nil {
				return
			}
			started := time.Now()
			s.dispatch(sess, env)
			s.monitor.IncMessagesReceived()
			s.monitor.ObserveMessageLatency(time.Since(started))
		}
	}
}

// handleDisconnect detaches a dropped connection from its room. During a
// match this opens the grace window instead of removing the seat.
func (s *GameServer) handleDisconnect(sess *session.Session) {
	if sess.RoomID == "" {
		return
	}
	r, err := s.roomManager.LeaveRoom(sess.RoomID, sess.UserID)
	if err != nil {
		return
	}
	if r != nil {
		s.broadcastRoomState(r)
	}
}

func (s *GameServer) broadcastRoomState(r *room.Room) {
	env := network.MustEnvelope(network.KindRoomState, r.StatePayload())
	_ = s.broadcaster.BroadcastToRoom(r.ID, env)
	s.monitor.IncBroadcasts()
}

// dispatch routes one envelope. Everything except registration, auth and
// heartbeats requires an authenticated session.
func (s *GameServer) dispatch(sess *session.Session, env *network.Envelope) {
	switch env.Type {
	case network.KindHeartbeat:
		sess.Touch()
		return
	case network.KindRegister:
		s.handleRegister(sess, env)
		return
	case network.KindAuth:
		s.handleAuth(sess, env)
		return
	}

	if !sess.Authenticated() {
		s.sendError(sess, "session_unknown", "authentication required")
		return
	}

	switch env.Type {
	case network.KindLogout:
		s.handleLogout(sess)
	case network.KindCreateRoom:
		s.handleCreateRoom(sess, env)
	case network.KindJoinRoom:
		s.handleJoinRoom(sess, env)
	case network.KindLeaveRoom:
		s.handleLeaveRoom(sess)
	case network.KindListRooms:
		s.handleListRooms(sess)
	case network.KindSetReady:
		s.handleSetReady(sess, env)
	case network.KindSelectSong:
		s.handleSelectSong(sess, env)
	case network.KindStartMatch:
		s.handleStartMatch(sess)
	case network.KindHitEvent, network.KindMissEvent, network.KindComboBreak, network.KindGameFinished:
		s.handleGameEvent(sess, env)
	case network.KindChat:
		s.handleChat(sess, env)
	case network.KindFriendRequest:
		s.handleFriendRequest(sess, env)
	case network.KindFriendAccept:
		s.handleFriendAccept(sess, env)
	case network.KindFriendBlock:
		s.handleFriendBlock(sess, env)
	case network.KindGetFriends:
		s.handleGetFriends(sess)
	case network.KindLeaderboard:
		s.handleLeaderboard(sess, env)
	case network.KindAchievements:
		s.handleAchievements(sess)
	default:
		logger.Log.Infof("unknown message type %q from session %s", env.Type, sess.GetID())
		s.sendError(sess, "bad_request", "unknown message type")
	}
}
