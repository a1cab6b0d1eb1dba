// rpc/rpc.go
package rpc

import (
	"net"
	"net/rpc"
	"time"

	"github.com/CodingInCarhartts/yum-osu/account"
	"github.com/CodingInCarhartts/yum-osu/logger"
	"github.com/CodingInCarhartts/yum-osu/network"
	"github.com/CodingInCarhartts/yum-osu/room"
	"github.com/CodingInCarhartts/yum-osu/services"
	"github.com/CodingInCarhartts/yum-osu/session"
)

// Server manages the admin RPC listener. It binds on loopback by default
// and is not part of the player-facing surface.
type Server struct {
	listener net.Listener
	address  string
}

func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// AdminService exposes operational reads over net/rpc.
type AdminService struct {
	stats    *services.StatsService
	rooms    *room.Manager
	sessions *session.Manager
	started  time.Time
}

func NewAdminService(stats *services.StatsService, rooms *room.Manager, sessions *session.Manager) *AdminService {
	return &AdminService{
		stats:    stats,
		rooms:    rooms,
		sessions: sessions,
		started:  time.Now(),
	}
}

// Register wires the service into the default net/rpc registry.
func (a *AdminService) Register() error {
	return rpc.RegisterName("Admin", a)
}

type GetPlayerStatsArgs struct {
	Username string
}

type GetPlayerStatsReply struct {
	UserID   string
	Username string
	Stats    account.Stats
	LastSeen time.Time
}

func (a *AdminService) GetPlayerStats(args *GetPlayerStatsArgs, reply *GetPlayerStatsReply) error {
	user, err := a.stats.PlayerStats(args.Username)
	if err != nil {
		return err
	}
	reply.UserID = user.ID.String()
	reply.Username = user.Username
	reply.Stats = user.Stats
	reply.LastSeen = user.LastLogin
	return nil
}

type ListRoomsArgs struct{}

type ListRoomsReply struct {
	Rooms []network.RoomSummary
}

func (a *AdminService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	reply.Rooms = a.rooms.ListRooms()
	return nil
}

type ServerInfoArgs struct{}

type ServerInfoReply struct {
	UptimeSeconds float64
	PlayersOnline int
	ActiveRooms   int
}

func (a *AdminService) ServerInfo(args *ServerInfoArgs, reply *ServerInfoReply) error {
	reply.UptimeSeconds = time.Since(a.started).Seconds()
	reply.PlayersOnline = a.sessions.Count()
	reply.ActiveRooms = a.rooms.Count()
	return nil
}
