// persistence/gorm_postgresql.go
package persistence

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormPostgreSQL is the GORM-backed variant of the PostgreSQL store.
type GormPostgreSQL struct {
	db *gorm.DB
}

func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

type SnapshotModel struct {
	ID        uint            `gorm:"primaryKey"`
	Data      json.RawMessage `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time
}

type MatchRecordModel struct {
	ID         uint            `gorm:"primaryKey"`
	RoomID     string          `gorm:"index;not null"`
	Song       string          `gorm:"not null"`
	Results    json.RawMessage `gorm:"type:jsonb;not null"`
	FinishedAt time.Time       `gorm:"index;not null"`
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&SnapshotModel{},
		&MatchRecordModel{},
	)
}

func (p *GormPostgreSQL) Save(snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	var row SnapshotModel
	result := p.db.Where("id = ?", 1).First(&row)

	if result.Error == gorm.ErrRecordNotFound {
		row = SnapshotModel{ID: 1, Data: data}
		return p.db.Create(&row).Error
	} else if result.Error != nil {
		return result.Error
	}

	row.Data = data
	row.UpdatedAt = time.Now()
	return p.db.Save(&row).Error
}

func (p *GormPostgreSQL) Load() (*Snapshot, error) {
	var row SnapshotModel
	if err := p.db.Where("id = ?", 1).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return &Snapshot{}, nil
		}
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(row.Data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (p *GormPostgreSQL) AppendMatch(rec MatchRecord) error {
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return err
	}

	row := MatchRecordModel{
		RoomID:     rec.RoomID,
		Song:       rec.Song,
		Results:    results,
		FinishedAt: rec.FinishedAt,
	}
	return p.db.Create(&row).Error
}

func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction exposes GORM transactions for callers that batch writes.
func (p *GormPostgreSQL) Transaction(fn func(tx *gorm.DB) error) error {
	return p.db.Transaction(fn)
}
