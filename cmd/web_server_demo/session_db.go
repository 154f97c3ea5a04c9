package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// dbSessionStore keeps sessions server side in sqlite; the browser only holds
// the session id.
type dbSessionStore struct {
	db     *gorm.DB
	secure bool
}

func newDbSessionStore(path string, secure bool) (*dbSessionStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("could not open session database: %w", err)
	}

	if err := db.AutoMigrate(&StoredSession{}); err != nil {
		return nil, fmt.Errorf("could not migrate session database: %w", err)
	}

	return &dbSessionStore{db: db, secure: secure}, nil
}

func (s *dbSessionStore) Get(e echo.Context) (*SessionData, error) {
	id := readSessionID(e)
	if id == "" {
		return &SessionData{}, nil
	}

	var row StoredSession
	err := s.db.WithContext(e.Request().Context()).
		Where("id = ? AND expires_at > ?", id, time.Now()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &SessionData{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not load session: %w", err)
	}

	var data SessionData
	if err := json.Unmarshal([]byte(row.Data), &data); err != nil {
		return nil, fmt.Errorf("could not decode session: %w", err)
	}
	data.ID = row.ID

	return &data, nil
}

func (s *dbSessionStore) Save(e echo.Context, data *SessionData) error {
	if data.ID == "" {
		data.ID = uuid.NewString()
	}

	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("could not encode session: %w", err)
	}

	maxAge := data.maxAge()
	row := &StoredSession{
		ID:        data.ID,
		Data:      string(b),
		ExpiresAt: time.Now().Add(time.Duration(maxAge) * time.Second),
	}

	if err := s.db.WithContext(e.Request().Context()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(row).Error; err != nil {
		return fmt.Errorf("could not save session: %w", err)
	}

	writeSessionID(e, data.ID, maxAge, s.secure)

	return nil
}

func (s *dbSessionStore) Destroy(e echo.Context) error {
	if id := readSessionID(e); id != "" {
		if err := s.db.WithContext(e.Request().Context()).Delete(&StoredSession{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("could not delete session: %w", err)
		}
	}

	writeSessionID(e, "", -1, s.secure)

	return nil
}

// PurgeExpired removes sessions past their expiry and reports how many went.
func (s *dbSessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", time.Now()).Delete(&StoredSession{})
	return res.RowsAffected, res.Error
}
