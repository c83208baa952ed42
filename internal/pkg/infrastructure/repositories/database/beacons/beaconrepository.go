package beacons

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/logging"
	"github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/repositories/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBeaconNotFound  = fmt.Errorf("beacon not found")
	ErrRepositoryError = fmt.Errorf("internal repository error")
)

//go:generate moq -rm -out beaconrepository_mock.go . BeaconRepository

type BeaconRepository interface {
	FindBeacon(ctx context.Context, beaconUUID, major, minor string) (Beacon, error)
	GetAll(ctx context.Context) ([]Beacon, error)
	Save(ctx context.Context, beacon *Beacon) error
	Seed(ctx context.Context, seedFileReader io.Reader) error
}

func NewBeaconRepository(connect database.ConnectorFunc) (BeaconRepository, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	err = impl.AutoMigrate(&Beacon{})
	if err != nil {
		return nil, err
	}

	return &beaconRepository{db: impl}, nil
}

type beaconRepository struct {
	db *gorm.DB
}

func (r *beaconRepository) FindBeacon(ctx context.Context, beaconUUID, major, minor string) (Beacon, error) {
	var beacon Beacon

	result := r.db.WithContext(ctx).
		Where("beacon_uuid = ? AND beacon_major = ? AND beacon_minor = ?",
			strings.ToUpper(beaconUUID), major, minor).
		First(&beacon)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return Beacon{}, ErrBeaconNotFound
		}

		return Beacon{}, ErrRepositoryError
	}

	return beacon, nil
}

func (r *beaconRepository) GetAll(ctx context.Context) ([]Beacon, error) {
	var beacons []Beacon

	result := r.db.WithContext(ctx).Order("alias ASC").Find(&beacons)
	if result.Error != nil {
		return nil, ErrRepositoryError
	}

	return beacons, nil
}

func (r *beaconRepository) Save(ctx context.Context, beacon *Beacon) error {
	beacon.BeaconUUID = strings.ToUpper(beacon.BeaconUUID)

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "beacon_uuid"}, {Name: "beacon_major"}, {Name: "beacon_minor"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"alias"}),
	}).Create(beacon)

	if result.Error != nil {
		logger := logging.GetFromContext(ctx)
		logger.Error().Err(result.Error).Msg("gorm error")

		return ErrRepositoryError
	}

	return nil
}

// Seed loads beacons from a semicolon separated file with lines on the
// form uuid;major;minor;alias. The first line is expected to be a header.
func (r *beaconRepository) Seed(ctx context.Context, seedFileReader io.Reader) error {
	logger := logging.GetFromContext(ctx)

	scanner := bufio.NewScanner(seedFileReader)
	lineCount := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineCount++

		if lineCount == 1 || line == "" {
			continue
		}

		fields := strings.Split(line, ";")
		if len(fields) != 4 {
			return fmt.Errorf("line %d in seed data is malformed", lineCount)
		}

		err := r.Save(ctx, &Beacon{
			BeaconUUID:  fields[0],
			BeaconMajor: fields[1],
			BeaconMinor: fields[2],
			Alias:       fields[3],
		})
		if err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read seed data: %w", err)
	}

	logger.Info().Msgf("seeded %d beacons", lineCount-1)

	return nil
}
