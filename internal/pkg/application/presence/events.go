package presence

type UserRegistered struct {
	Nickname   string `json:"nickName"`
	DeviceUUID string `json:"deviceUuid"`
	Timestamp  string `json:"timestamp"`
}

func (u *UserRegistered) ContentType() string {
	return "application/json"
}
func (u *UserRegistered) TopicName() string {
	return "presence.userRegistered"
}

type LocationReported struct {
	Nickname    string `json:"nickName"`
	BeaconUUID  string `json:"beaconUuid"`
	BeaconMajor string `json:"beaconMajor"`
	BeaconMinor string `json:"beaconMinor"`
	Timestamp   string `json:"timestamp"`
}

func (l *LocationReported) ContentType() string {
	return "application/json"
}
func (l *LocationReported) TopicName() string {
	return "presence.locationReported"
}
