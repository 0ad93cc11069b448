package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/arnavshah/capacity-scheduler-api/pkg/models"
)

// APIKey represents the api_keys table
type APIKey struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Key        string     `gorm:"unique;not null" json:"-"`
	KeyPreview string     `json:"key_preview"`
	Name       string     `gorm:"not null" json:"name"`
	RateLimit  int        `gorm:"default:10000" json:"rate_limit"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsed   *time.Time `json:"last_used"`
}

// APIUsage represents the api_usage table. One row per key per day.
type APIUsage struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	KeyID             uint   `gorm:"uniqueIndex:idx_key_date;not null" json:"key_id"`
	Date              string `gorm:"uniqueIndex:idx_key_date;not null" json:"date"`
	RequestCount      int    `gorm:"default:0" json:"request_count"`
	ScheduleRequests  int    `gorm:"default:0" json:"schedule_requests"`
	CrewAssignments   int    `gorm:"default:0" json:"crew_assignments"`
	CostLinesImported int    `gorm:"default:0" json:"cost_lines_imported"`
}

// MasterUser represents the master_users table
type MasterUser struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"unique;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// CrewLedger is the per-date crew assignment record. Version is bumped on
// every write and checked before it.
type CrewLedger struct {
	Date      string              `gorm:"primaryKey;size:10" json:"date"`
	Version   int64               `gorm:"not null;default:0" json:"version"`
	Crews     map[string][]string `gorm:"serializer:json" json:"crews"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Open connects to Postgres when databaseURL is set and to a SQLite file at
// dataPath otherwise, then migrates the schema.
func Open(databaseURL, dataPath string) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	if databaseURL != "" {
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  databaseURL,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	} else {
		if dataPath == "" {
			dataPath = "capacity.db"
		}
		db, err = gorm.Open(sqlite.Open(dataPath), &gorm.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&APIKey{}, &APIUsage{}, &MasterUser{},
		&models.Job{}, &models.CostLine{}, &models.Phase{},
		&models.CrewSheet{}, &models.WeeklyForecast{}, &models.MonthlyAllocation{},
		&models.Worker{}, &models.TimeOff{}, &CrewLedger{},
	)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// InitDB opens the database or exits the process.
func InitDB(databaseURL, dataPath string) *gorm.DB {
	db, err := Open(databaseURL, dataPath)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	return db
}
