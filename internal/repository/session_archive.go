package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/easeaico/project-chara/internal/session"
)

// sessionModel maps to the archived_sessions table. The full session
// snapshot lives in a JSONB payload; the indexed columns exist for
// querying.
type sessionModel struct {
	ID          int
	SessionID   string `gorm:"uniqueIndex"`
	CharacterID string
	Payload     json.RawMessage `gorm:"type:jsonb"`
	UpdatedAt   time.Time
}

func (sessionModel) TableName() string {
	return "archived_sessions"
}

// SessionArchive persists session snapshots. It implements
// kv.Store[session.Session] so the session manager can restore evicted
// sessions from it.
type SessionArchive struct {
	db *gorm.DB
}

// NewSessionArchive returns a SessionArchive.
func NewSessionArchive(db *gorm.DB) *SessionArchive {
	return &SessionArchive{db: db}
}

func (a *SessionArchive) Get(ctx context.Context, key string) (session.Session, bool, error) {
	var record sessionModel
	err := a.db.WithContext(ctx).Where("session_id = ?", key).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session.Session{}, false, nil
	}
	if err != nil {
		return session.Session{}, false, fmt.Errorf("failed to query archived session: %w", err)
	}

	var s session.Session
	if err := json.Unmarshal(record.Payload, &s); err != nil {
		return session.Session{}, false, fmt.Errorf("failed to decode archived session: %w", err)
	}
	return s, true, nil
}

func (a *SessionArchive) Set(ctx context.Context, key string, value session.Session) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	record := sessionModel{
		SessionID:   key,
		CharacterID: value.CharacterID,
		Payload:     payload,
	}
	err = a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"character_id", "payload", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to archive session: %w", err)
	}
	return nil
}

func (a *SessionArchive) Delete(ctx context.Context, key string) error {
	err := a.db.WithContext(ctx).Where("session_id = ?", key).Delete(&sessionModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete archived session: %w", err)
	}
	return nil
}

func (a *SessionArchive) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := a.db.WithContext(ctx).Model(&sessionModel{}).Pluck("session_id", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list archived sessions: %w", err)
	}
	return keys, nil
}
