package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/logging"
	"github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/repositories/database"
	"github.com/indoorpos/presence-mgmt/pkg/types"
	"gorm.io/gorm"
)

var ErrUserNotFound = fmt.Errorf("user not found")
var ErrReportNotFound = fmt.Errorf("no reports found")
var ErrRepositoryError = fmt.Errorf("could not fetch data from repository")

//go:generate moq -rm -out presencerepository_mock.go . PresenceRepository

type PresenceRepository interface {
	RegisterUser(ctx context.Context, deviceUUID, nickname string) (User, error)
	GetUsers(ctx context.Context) ([]User, error)
	GetUserByNickname(ctx context.Context, nickname string) (User, error)

	AddReport(ctx context.Context, report *LocationReport) error
	GetLatestReport(ctx context.Context, nickname string) (LocationReport, error)
	QueryReports(ctx context.Context, conditions ...ConditionFunc) (types.Collection[LocationReport], error)
	GetReportTimes(ctx context.Context, nickname string) ([]time.Time, error)

	DeleteReports(ctx context.Context, nickname string) error
	DeleteUser(ctx context.Context, nickname string) error
}

func NewPresenceRepository(connect database.ConnectorFunc) (PresenceRepository, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	err = impl.AutoMigrate(&User{}, &LocationReport{})
	if err != nil {
		return nil, err
	}

	return &presenceRepository{
		db: impl,
	}, nil
}

type presenceRepository struct {
	db *gorm.DB

	// registerMu serializes registrations so that concurrent calls
	// touching the same nickname or device can not race the unique
	// indexes into a duplicate key failure.
	registerMu sync.Mutex
}

// RegisterUser reconciles a (deviceUuid, nickname) pair against the
// existing user table:
//
//   - device known, nickname held by another user: the nickname holder
//     takes over the device and the superseded row is removed, merging
//     the two identities into one
//   - device known, nickname free (or already its own): rename
//   - device unknown, nickname known: the nickname migrates to the new
//     device
//   - neither known: create
//
// The whole table runs in a single transaction.
func (r *presenceRepository) RegisterUser(ctx context.Context, deviceUUID, nickname string) (User, error) {
	r.registerMu.Lock()
	defer r.registerMu.Unlock()

	var user User

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var byDevice, byNickname User

		deviceErr := tx.Where("device_uuid = ?", deviceUUID).First(&byDevice).Error
		if deviceErr != nil && !errors.Is(deviceErr, gorm.ErrRecordNotFound) {
			return deviceErr
		}

		nicknameErr := tx.Where("nickname = ?", nickname).First(&byNickname).Error
		if nicknameErr != nil && !errors.Is(nicknameErr, gorm.ErrRecordNotFound) {
			return nicknameErr
		}

		deviceFound := deviceErr == nil
		nicknameFound := nicknameErr == nil

		switch {
		case deviceFound && nicknameFound && byDevice.ID != byNickname.ID:
			if err := tx.Unscoped().Delete(&byDevice).Error; err != nil {
				return err
			}
			byNickname.DeviceUUID = deviceUUID
			if err := tx.Save(&byNickname).Error; err != nil {
				return err
			}
			user = byNickname
		case deviceFound:
			byDevice.Nickname = nickname
			if err := tx.Save(&byDevice).Error; err != nil {
				return err
			}
			user = byDevice
		case nicknameFound:
			byNickname.DeviceUUID = deviceUUID
			if err := tx.Save(&byNickname).Error; err != nil {
				return err
			}
			user = byNickname
		default:
			user = User{DeviceUUID: deviceUUID, Nickname: nickname}
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		logger := logging.GetFromContext(ctx)
		logger.Error().Err(err).Msg("gorm error")

		return User{}, ErrRepositoryError
	}

	return user, nil
}

func (r *presenceRepository) GetUsers(ctx context.Context) ([]User, error) {
	var users []User

	result := r.db.WithContext(ctx).Order("nickname ASC").Find(&users)
	if result.Error != nil {
		return nil, ErrRepositoryError
	}

	return users, nil
}

func (r *presenceRepository) GetUserByNickname(ctx context.Context, nickname string) (User, error) {
	var user User

	result := r.db.WithContext(ctx).Where("nickname = ?", nickname).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return User{}, ErrUserNotFound
		}

		return User{}, ErrRepositoryError
	}

	return user, nil
}

func (r *presenceRepository) AddReport(ctx context.Context, report *LocationReport) error {
	result := r.db.WithContext(ctx).Create(report)
	if result.Error != nil {
		logger := logging.GetFromContext(ctx)
		logger.Error().Err(result.Error).Msg("gorm error")

		return ErrRepositoryError
	}

	return nil
}

func (r *presenceRepository) GetLatestReport(ctx context.Context, nickname string) (LocationReport, error) {
	var report LocationReport

	result := r.db.WithContext(ctx).
		Where("nickname = ?", nickname).
		Order("created_at DESC, id DESC").
		First(&report)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return LocationReport{}, ErrReportNotFound
		}

		return LocationReport{}, ErrRepositoryError
	}

	return report, nil
}

func (r *presenceRepository) QueryReports(ctx context.Context, conditions ...ConditionFunc) (types.Collection[LocationReport], error) {
	condition := &Condition{}
	for _, f := range conditions {
		condition = f(condition)
	}

	base := func() *gorm.DB {
		return condition.apply(r.db.WithContext(ctx).Model(&LocationReport{}))
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return types.Collection[LocationReport]{}, ErrRepositoryError
	}

	var reports []LocationReport

	query := condition.window(base().Order("created_at DESC, id DESC"))
	if err := query.Find(&reports).Error; err != nil {
		return types.Collection[LocationReport]{}, ErrRepositoryError
	}

	return types.Collection[LocationReport]{
		Data:       reports,
		Count:      uint64(len(reports)),
		TotalCount: uint64(total),
	}, nil
}

func (r *presenceRepository) GetReportTimes(ctx context.Context, nickname string) ([]time.Time, error) {
	var reports []LocationReport

	result := r.db.WithContext(ctx).
		Select("created_at").
		Where("nickname = ?", nickname).
		Order("created_at DESC").
		Find(&reports)

	if result.Error != nil {
		return nil, ErrRepositoryError
	}

	times := make([]time.Time, 0, len(reports))
	for _, report := range reports {
		times = append(times, report.CreatedAt)
	}

	return times, nil
}

// DeleteReports removes every report for nickname. Deletes bypass the
// gorm soft delete so that counts and the unique indexes really free up.
func (r *presenceRepository) DeleteReports(ctx context.Context, nickname string) error {
	result := r.db.WithContext(ctx).Unscoped().
		Where("nickname = ?", nickname).
		Delete(&LocationReport{})

	if result.Error != nil {
		return ErrRepositoryError
	}

	return nil
}

// DeleteUser removes the user row and all of its reports in a single
// transaction.
func (r *presenceRepository) DeleteUser(ctx context.Context, nickname string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User

		result := tx.Where("nickname = ?", nickname).First(&user)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return result.Error
		}

		if err := tx.Unscoped().Where("nickname = ?", nickname).Delete(&LocationReport{}).Error; err != nil {
			return err
		}

		return tx.Unscoped().Delete(&user).Error
	})

	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return err
		}

		logger := logging.GetFromContext(ctx)
		logger.Error().Err(err).Msg("gorm error")

		return ErrRepositoryError
	}

	return nil
}
