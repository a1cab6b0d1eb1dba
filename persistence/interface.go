// persistence/interface.go
package persistence

import (
	"errors"
	"time"

	"github.com/CodingInCarhartts/yum-osu/account"
	"github.com/CodingInCarhartts/yum-osu/community"
	"github.com/CodingInCarhartts/yum-osu/config"
	"github.com/CodingInCarhartts/yum-osu/state"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrUnknownDriver  = errors.New("unknown storage driver")
)

// Snapshot bundles everything the server persists across restarts:
// accounts, live auth sessions and the community tables. Rooms and
// running matches are deliberately not part of it.
type Snapshot struct {
	Users     []account.User        `json:"users"`
	Sessions  []account.AuthSession `json:"sessions"`
	Community community.Snapshot    `json:"community"`
}

// MatchRecord is one completed match appended to the match history.
type MatchRecord struct {
	RoomID     string               `json:"room_id"`
	Song       string               `json:"song"`
	FinishedAt time.Time            `json:"finished_at"`
	Results    []state.PlayerResult `json:"results"`
}

// Store persists snapshots and match history.
type Store interface {
	Save(snap *Snapshot) error
	Load() (*Snapshot, error)
	AppendMatch(rec MatchRecord) error
	Close() error
}

// Open builds the store selected by the storage config.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "file", "":
		return NewFileStore(cfg.DataDir)
	case "postgres":
		p := cfg.Postgres
		return NewPostgreSQL(p.Host, p.Port, p.User, p.Password, p.DBName)
	case "gorm":
		p := cfg.Postgres
		return NewGormPostgreSQL(p.Host, p.Port, p.User, p.Password, p.DBName)
	default:
		return nil, ErrUnknownDriver
	}
}
