package beacons

import "gorm.io/gorm"

// Beacon is a known iBeacon transmitter. The uuid/major/minor triple
// identifies the physical unit, the alias is the human readable name
// of the location it covers.
type Beacon struct {
	gorm.Model

	BeaconUUID  string `gorm:"column:beacon_uuid;uniqueIndex:idx_beacon_identity"`
	BeaconMajor string `gorm:"uniqueIndex:idx_beacon_identity"`
	BeaconMinor string `gorm:"uniqueIndex:idx_beacon_identity"`
	Alias       string
}
