package presence

import (
	"gorm.io/gorm"
)

// User binds a device to a nickname. Both attributes are unique across
// the table at any point in time; RegisterUser keeps that invariant when
// either attribute migrates between identities.
type User struct {
	gorm.Model `json:"-"`

	DeviceUUID string `gorm:"uniqueIndex;column:device_uuid" json:"deviceUuid"`
	Nickname   string `gorm:"uniqueIndex" json:"nickname"`
}

// LocationReport is one appended sighting. The nickname is deliberately
// not a foreign key: reports may arrive before the user registers, and
// they survive a user row moving to another device.
//
// CreatedAt from gorm.Model is the server assigned ordering key. The
// Timestamp column holds the client supplied wall clock and is advisory
// only, client clocks are untrusted.
type LocationReport struct {
	gorm.Model `json:"-"`

	Nickname    string `gorm:"index" json:"nickname"`
	BeaconUUID  string `gorm:"column:beacon_uuid" json:"beaconUuid"`
	BeaconMajor string `json:"beaconMajor"`
	BeaconMinor string `json:"beaconMinor"`
	Timestamp   string `json:"timeStamp"`
	APILogID    *uint  `gorm:"column:api_log_id" json:"apiLogId,omitempty"`
}

// BeaconIsEmpty reports whether the beacon triple is the all-empty
// sentinel that clients send when no beacon is in range.
func (r LocationReport) BeaconIsEmpty() bool {
	return r.BeaconUUID == "" && r.BeaconMajor == "" && r.BeaconMinor == ""
}
