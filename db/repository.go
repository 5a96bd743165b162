package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// HistoryRepository defines decoupled operations for the refresh journal.
type HistoryRepository interface {
	Record(ctx context.Context, event RefreshEvent) error
	Recent(ctx context.Context, service, account string, limit int) ([]RefreshEvent, error)
	// ConsecutiveFailures counts the unbroken run of failed attempts ending
	// at the most recent attempt for a target. A successful attempt resets
	// the count to zero.
	ConsecutiveFailures(ctx context.Context, service, account string) (int, error)
}

// gormHistoryRepo is a GORM-backed implementation of HistoryRepository.
// Use constructor NewHistoryRepository to obtain an instance.
type gormHistoryRepo struct{ db *gorm.DB }

// NewHistoryRepository creates a HistoryRepository. Accepts *gorm.DB to avoid global access.
func NewHistoryRepository(db *gorm.DB) HistoryRepository { return &gormHistoryRepo{db: db} }

func (r *gormHistoryRepo) Record(ctx context.Context, event RefreshEvent) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return r.db.WithContext(ctx).Create(&event).Error
}

func (r *gormHistoryRepo) Recent(ctx context.Context, service, account string, limit int) ([]RefreshEvent, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	if limit <= 0 {
		limit = 20
	}
	var events []RefreshEvent
	err := r.db.WithContext(ctx).
		Where("service = ? AND account = ?", service, account).
		Order("attempted_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *gormHistoryRepo) ConsecutiveFailures(ctx context.Context, service, account string) (int, error) {
	if r.db == nil {
		return 0, fmt.Errorf("repository not initialized")
	}
	var events []RefreshEvent
	err := r.db.WithContext(ctx).
		Select("success").
		Where("service = ? AND account = ?", service, account).
		Order("attempted_at DESC").
		Find(&events).Error
	if err != nil {
		return 0, err
	}
	count := 0
	for _, ev := range events {
		if ev.Success {
			break
		}
		count++
	}
	return count, nil
}
