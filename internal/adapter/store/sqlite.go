package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/solarcharge2mqtt/internal/core/domain"
	"github.com/berfenger/solarcharge2mqtt/internal/core/port"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// record is a keyed JSON document. One table covers schedules, plans,
// session snapshots and calibration results.
type record struct {
	Key       string `gorm:"primaryKey"`
	Payload   string
	UpdatedAt time.Time
}

type SQLiteStore struct {
	db *gorm.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) WeeklySchedule(chargerId string) (*domain.WeeklySchedule, error) {
	return load[domain.WeeklySchedule](s, scheduleKey(chargerId))
}

func (s *SQLiteStore) SaveWeeklySchedule(chargerId string, schedule domain.WeeklySchedule) error {
	return save(s, scheduleKey(chargerId), schedule)
}

func (s *SQLiteStore) DailyPlan(chargerId string, day string) (*domain.DailyPlan, error) {
	return load[domain.DailyPlan](s, planKey(chargerId, day))
}

func (s *SQLiteStore) SaveDailyPlan(plan domain.DailyPlan) error {
	return save(s, planKey(plan.ChargerId, plan.Day), plan)
}

func (s *SQLiteStore) SessionSnapshot(chargerId string) (*domain.ChargeSession, error) {
	return load[domain.ChargeSession](s, sessionKey(chargerId))
}

func (s *SQLiteStore) SaveSessionSnapshot(session domain.ChargeSession) error {
	return save(s, sessionKey(session.ChargerId), session)
}

func (s *SQLiteStore) ChargeSpeed(chargerId string) (*float64, error) {
	return load[float64](s, speedKey(chargerId))
}

func (s *SQLiteStore) SaveChargeSpeed(chargerId string, pctPerHour float64) error {
	return save(s, speedKey(chargerId), pctPerHour)
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func load[T any](s *SQLiteStore, key string) (*T, error) {
	var rec record
	err := s.db.First(&rec, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var value T
	if err := json.Unmarshal([]byte(rec.Payload), &value); err != nil {
		return nil, err
	}
	return &value, nil
}

func save[T any](s *SQLiteStore, key string, value T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Save(&record{
		Key:       key,
		Payload:   string(payload),
		UpdatedAt: time.Now(),
	}).Error
}

func scheduleKey(chargerId string) string {
	return fmt.Sprintf("schedule/%s", chargerId)
}

func planKey(chargerId, day string) string {
	return fmt.Sprintf("plan/%s/%s", chargerId, day)
}

func sessionKey(chargerId string) string {
	return fmt.Sprintf("session/%s", chargerId)
}

func speedKey(chargerId string) string {
	return fmt.Sprintf("speed/%s", chargerId)
}

// ensure interface compliance
var _ port.Store = (*SQLiteStore)(nil)
