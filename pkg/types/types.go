package types

import (
	"time"
)

// Beacon is a stationary proximity transmitter, identified by its
// (uuid, major, minor) triple. All three parts are opaque strings.
type Beacon struct {
	UUID  string `json:"uuid" yaml:"uuid"`
	Major string `json:"major" yaml:"major"`
	Minor string `json:"minor" yaml:"minor"`
	Alias string `json:"alias" yaml:"alias"`
}

// IsEmpty reports whether the identity triple is the all-empty sentinel
// used by mobile clients to signal "no beacon in range".
func (b Beacon) IsEmpty() bool {
	return b.UUID == "" && b.Major == "" && b.Minor == ""
}

const (
	StatusActive = "Active"
	StatusAway   = "Away"
)

// Display aliases for beacon triples that can not be resolved against
// the directory. The bulk listing and the history listing use different
// wording for an unregistered triple, which the dashboard relies on.
const (
	AliasUnknown       = "Unknown"
	AliasDisconnected  = "Disconnected"
	AliasOutsideRange  = "Outside Range"
	AliasUnknownBeacon = "Unknown Beacon"
)

type Registration struct {
	Nickname   string `json:"nickName"`
	DeviceUUID string `json:"deviceUuid"`
}

// UserPresence is the derived snapshot for one user: status and current
// location resolved from the latest location report.
type UserPresence struct {
	Nickname      string    `json:"nickname"`
	DeviceUUID    string    `json:"deviceUuid"`
	LastSeen      time.Time `json:"lastSeen"`
	CurrentBeacon string    `json:"currentBeacon"`
	Status        string    `json:"status"`
}

type HistoryEntry struct {
	ID          uint      `json:"id"`
	Nickname    string    `json:"nickname"`
	BeaconUUID  string    `json:"beaconUuid"`
	BeaconMajor string    `json:"beaconMajor"`
	BeaconMinor string    `json:"beaconMinor"`
	BeaconAlias string    `json:"beaconAlias"`
	Timestamp   string    `json:"timeStamp,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	APILogID    *uint     `json:"apiLogId,omitempty"`
}

type Collection[T any] struct {
	Data       []T    `json:"data"`
	Count      uint64 `json:"count"`
	Offset     uint64 `json:"offset"`
	Limit      uint64 `json:"limit"`
	TotalCount uint64 `json:"totalCount"`
}
