package auditlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/repositories/database"
	"gorm.io/gorm"
)

var (
	ErrLogNotFound     = fmt.Errorf("log entry not found")
	ErrRepositoryError = fmt.Errorf("internal repository error")
)

type AuditLogRepository interface {
	Add(ctx context.Context, entry *APILog) error
	SetResponse(ctx context.Context, id uint, status int, responseHeaders, responseBody string) error
	GetByID(ctx context.Context, id uint) (APILog, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

func NewAuditLogRepository(connect database.ConnectorFunc) (AuditLogRepository, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	err = impl.AutoMigrate(&APILog{})
	if err != nil {
		return nil, err
	}

	return &auditLogRepository{db: impl}, nil
}

type auditLogRepository struct {
	db *gorm.DB
}

func (r *auditLogRepository) Add(ctx context.Context, entry *APILog) error {
	result := r.db.WithContext(ctx).Create(entry)
	if result.Error != nil {
		return ErrRepositoryError
	}

	return nil
}

func (r *auditLogRepository) SetResponse(ctx context.Context, id uint, status int, responseHeaders, responseBody string) error {
	result := r.db.WithContext(ctx).Model(&APILog{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"response_status":  status,
			"response_headers": responseHeaders,
			"response_body":    responseBody,
		})

	if result.Error != nil {
		return ErrRepositoryError
	}

	if result.RowsAffected == 0 {
		return ErrLogNotFound
	}

	return nil
}

func (r *auditLogRepository) GetByID(ctx context.Context, id uint) (APILog, error) {
	var entry APILog

	result := r.db.WithContext(ctx).First(&entry, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return APILog{}, ErrLogNotFound
		}

		return APILog{}, ErrRepositoryError
	}

	return entry, nil
}

func (r *auditLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&APILog{})

	if result.Error != nil {
		return 0, ErrRepositoryError
	}

	return result.RowsAffected, nil
}
