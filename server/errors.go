// server/errors.go
package server

import (
	"errors"

	"github.com/CodingInCarhartts/yum-osu/account"
	"github.com/CodingInCarhartts/yum-osu/community"
	"github.com/CodingInCarhartts/yum-osu/network"
	"github.com/CodingInCarhartts/yum-osu/room"
	"github.com/CodingInCarhartts/yum-osu/session"
	"github.com/CodingInCarhartts/yum-osu/state"
)

// errorCode maps domain errors onto stable wire codes. Clients branch on
// the code, the message is for humans.
func errorCode(err error) string {
	switch {
	case errors.Is(err, account.ErrInvalidCredentials):
		return "auth_failed"
	case errors.Is(err, account.ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, account.ErrSessionNotFound):
		return "session_unknown"
	case errors.Is(err, account.ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, account.ErrDuplicateIdentity):
		return "duplicate_identity"
	case errors.Is(err, account.ErrWeakPassword):
		return "weak_password"
	case errors.Is(err, account.ErrUserNotFound):
		return "bad_request"
	case errors.Is(err, room.ErrInvalidCapacity):
		return "invalid_capacity"
	case errors.Is(err, room.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, room.ErrRoomFull):
		return "room_full"
	case errors.Is(err, room.ErrAlreadyInRoom):
		return "already_in_room"
	case errors.Is(err, state.ErrMatchInProgress):
		return "match_in_progress"
	case errors.Is(err, state.ErrNotAllReady):
		return "not_all_ready"
	case errors.Is(err, state.ErrInsufficientPlayers):
		return "insufficient_players"
	case errors.Is(err, state.ErrNotHost):
		return "not_host"
	case errors.Is(err, community.ErrNoSuchRequest):
		return "no_such_request"
	default:
		return "bad_request"
	}
}

func (s *GameServer) sendError(sess *session.Session, code, message string) {
	env := network.MustEnvelope(network.KindError, network.ErrorMessage{
		Code:    code,
		Message: message,
	})
	_ = sess.Send(env)
}

func (s *GameServer) sendDomainError(sess *session.Session, err error) {
	s.sendError(sess, errorCode(err), err.Error())
}
