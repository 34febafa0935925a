package counting

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/edukinara/happybar-sub000/internal/models"
)

// Repository persists the store in the local database
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a repository over db
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates or updates the count tables
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(&models.CountItem{}, &models.CountSession{}, &models.CountState{})
}

// Load reads the persisted state, newest first
func (r *Repository) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	db := r.db.WithContext(ctx)

	if err := db.Order("seq desc").Find(&snap.Items).Error; err != nil {
		return Snapshot{}, err
	}
	if err := db.Order("seq desc").Find(&snap.Sessions).Error; err != nil {
		return Snapshot{}, err
	}

	var state models.CountState
	err := db.Where(&models.CountState{Key: models.StateKeyActiveSession}).First(&state).Error
	switch {
	case err == nil:
		if state.Value != "" {
			snap.ActiveSessionID = models.StringPtr(state.Value)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return Snapshot{}, err
	}

	return snap, nil
}

// SaveItem upserts a count item
func (r *Repository) SaveItem(item *models.CountItem) error {
	return r.db.Save(item).Error
}

// DeleteItem removes a count item
func (r *Repository) DeleteItem(id string) error {
	return r.db.Delete(&models.CountItem{}, "id = ?", id).Error
}

// ClearItems removes every count item
func (r *Repository) ClearItems() error {
	return r.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.CountItem{}).Error
}

// SaveSession upserts a count session
func (r *Repository) SaveSession(session *models.CountSession) error {
	return r.db.Save(session).Error
}

// SaveActiveSession stores the active session pointer; nil clears it
func (r *Repository) SaveActiveSession(id *string) error {
	if id == nil {
		return r.db.Delete(&models.CountState{Key: models.StateKeyActiveSession}).Error
	}
	return r.db.Save(&models.CountState{
		Key:       models.StateKeyActiveSession,
		Value:     *id,
		UpdatedAt: time.Now().UTC(),
	}).Error
}

var _ Persister = (*Repository)(nil)
