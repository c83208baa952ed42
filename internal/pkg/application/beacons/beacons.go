package beacons

import (
	"context"
	"io"

	db "github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/repositories/database/beacons"
	"github.com/indoorpos/presence-mgmt/pkg/types"
)

var ErrBeaconNotFound = db.ErrBeaconNotFound

//go:generate moq -rm -out beacons_mock.go . BeaconDirectory

// BeaconDirectory knows about the registered beacons and resolves
// identity triples to their human readable aliases.
type BeaconDirectory interface {
	FindBeacon(ctx context.Context, beaconUUID, major, minor string) (types.Beacon, error)
	GetBeacons(ctx context.Context) ([]types.Beacon, error)
	AddBeacon(ctx context.Context, beacon types.Beacon) error
	Seed(ctx context.Context, seedFileReader io.Reader) error
}

func New(repo db.BeaconRepository) BeaconDirectory {
	return &directory{repo: repo}
}

type directory struct {
	repo db.BeaconRepository
}

func (d *directory) FindBeacon(ctx context.Context, beaconUUID, major, minor string) (types.Beacon, error) {
	beacon, err := d.repo.FindBeacon(ctx, beaconUUID, major, minor)
	if err != nil {
		return types.Beacon{}, err
	}

	return toBeacon(beacon), nil
}

func (d *directory) GetBeacons(ctx context.Context) ([]types.Beacon, error) {
	beacons, err := d.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]types.Beacon, 0, len(beacons))
	for _, b := range beacons {
		result = append(result, toBeacon(b))
	}

	return result, nil
}

func (d *directory) AddBeacon(ctx context.Context, beacon types.Beacon) error {
	return d.repo.Save(ctx, &db.Beacon{
		BeaconUUID:  beacon.UUID,
		BeaconMajor: beacon.Major,
		BeaconMinor: beacon.Minor,
		Alias:       beacon.Alias,
	})
}

func (d *directory) Seed(ctx context.Context, seedFileReader io.Reader) error {
	return d.repo.Seed(ctx, seedFileReader)
}

func toBeacon(b db.Beacon) types.Beacon {
	return types.Beacon{
		UUID:  b.BeaconUUID,
		Major: b.BeaconMajor,
		Minor: b.BeaconMinor,
		Alias: b.Alias,
	}
}
