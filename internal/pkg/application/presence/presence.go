package presence

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/indoorpos/presence-mgmt/internal/pkg/application/beacons"
	"github.com/indoorpos/presence-mgmt/internal/pkg/application/subscribers"
	"github.com/indoorpos/presence-mgmt/internal/pkg/application/webevents"
	"github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/logging"
	db "github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/repositories/database/presence"
	"github.com/indoorpos/presence-mgmt/pkg/types"
	"github.com/samber/lo"
	"gopkg.in/yaml.v2"
)

var ErrEmptyField = fmt.Errorf("required field is empty")
var ErrInvalidDate = fmt.Errorf("invalid date")
var ErrUserNotFound = db.ErrUserNotFound

//go:generate moq -rm -out presence_mock.go . PresenceTracker

type PresenceTracker interface {
	RegisterUser(ctx context.Context, deviceUUID, nickname string) (types.Registration, error)
	ReportLocation(ctx context.Context, report IncomingReport) error

	GetPresence(ctx context.Context, nickname string) (types.UserPresence, error)
	GetUsersWithPresence(ctx context.Context) ([]types.UserPresence, error)

	GetHistory(ctx context.Context, nickname string, filter HistoryFilter) (HistoryPage, error)
	GetHistoryDates(ctx context.Context, nickname string) ([]string, error)

	ResetHistory(ctx context.Context, nickname string) error
	DeleteUser(ctx context.Context, nickname string) error

	RegisterTopicMessageHandler(ctx context.Context) error
}

// IncomingReport is a single beacon sighting as reported by a mobile
// client. An all-empty beacon triple means the client lost contact with
// every beacon. The timestamp is advisory only, ordering is decided by
// the server-assigned creation time.
type IncomingReport struct {
	Nickname    string `json:"nickName"`
	BeaconUUID  string `json:"beaconUuid"`
	BeaconMajor string `json:"beaconMajor"`
	BeaconMinor string `json:"beaconMinor"`
	Timestamp   string `json:"timeStamp"`
	APILogID    *uint  `json:"-"`
}

type HistoryFilter struct {
	Date   string
	Page   int
	Limit  int
	Offset *int
	All    bool
}

type HistoryPage struct {
	Data       []types.HistoryEntry `json:"data"`
	Total      int                  `json:"total"`
	Page       int                  `json:"page"`
	Limit      int                  `json:"limit"`
	TotalPages int                  `json:"totalPages"`
}

type Config struct {
	Timezone        string `yaml:"timezone"`
	DefaultPageSize int    `yaml:"defaultPageSize"`
}

// Location resolves the configured time zone that calendar dates are
// interpreted in. Defaults to the local zone of the server.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}

	return loc
}

func (c Config) pageSize() int {
	if c.DefaultPageSize > 0 {
		return c.DefaultPageSize
	}

	return 200
}

func NewConfig(config io.Reader) (*Config, error) {
	b, err := io.ReadAll(config)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	err = yaml.Unmarshal(b, cfg)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func New(repo db.PresenceRepository, directory beacons.BeaconDirectory, messenger messaging.MsgContext, sender subscribers.EventSender, we webevents.WebEvents, cfg Config) PresenceTracker {
	return &service{
		repo:      repo,
		directory: directory,
		messenger: messenger,
		sender:    sender,
		webevents: we,
		cfg:       cfg,
	}
}

type service struct {
	repo      db.PresenceRepository
	directory beacons.BeaconDirectory
	messenger messaging.MsgContext
	sender    subscribers.EventSender
	webevents webevents.WebEvents
	cfg       Config
}

func (s *service) RegisterTopicMessageHandler(ctx context.Context) error {
	s.messenger.RegisterTopicMessageHandler("location-report", NewLocationReportHandler(s))
	return nil
}

func (s *service) RegisterUser(ctx context.Context, deviceUUID, nickname string) (types.Registration, error) {
	if deviceUUID == "" || nickname == "" {
		return types.Registration{}, ErrEmptyField
	}

	user, err := s.repo.RegisterUser(ctx, deviceUUID, nickname)
	if err != nil {
		return types.Registration{}, err
	}

	registration := types.Registration{
		Nickname:   user.Nickname,
		DeviceUUID: user.DeviceUUID,
	}

	s.notifyUsersChanged(ctx)

	event := &UserRegistered{
		Nickname:   registration.Nickname,
		DeviceUUID: registration.DeviceUUID,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	s.publishEvent(ctx, event.TopicName(), registration.Nickname, event)

	return registration, nil
}

func (s *service) ReportLocation(ctx context.Context, report IncomingReport) error {
	if report.Nickname == "" {
		return ErrEmptyField
	}

	err := s.repo.AddReport(ctx, &db.LocationReport{
		Nickname:    report.Nickname,
		BeaconUUID:  report.BeaconUUID,
		BeaconMajor: report.BeaconMajor,
		BeaconMinor: report.BeaconMinor,
		Timestamp:   report.Timestamp,
		APILogID:    report.APILogID,
	})
	if err != nil {
		return err
	}

	s.notifyUsersChanged(ctx)
	s.notifyHistoryChanged(ctx, report.Nickname)

	event := &LocationReported{
		Nickname:    report.Nickname,
		BeaconUUID:  report.BeaconUUID,
		BeaconMajor: report.BeaconMajor,
		BeaconMinor: report.BeaconMinor,
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	s.publishEvent(ctx, event.TopicName(), report.Nickname, event)

	return nil
}

func (s *service) GetPresence(ctx context.Context, nickname string) (types.UserPresence, error) {
	user, err := s.repo.GetUserByNickname(ctx, nickname)
	if err != nil {
		return types.UserPresence{}, err
	}

	return s.resolvePresence(ctx, user, types.AliasOutsideRange), nil
}

func (s *service) GetUsersWithPresence(ctx context.Context) ([]types.UserPresence, error) {
	users, err := s.repo.GetUsers(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]types.UserPresence, 0, len(users))
	for _, user := range users {
		result = append(result, s.resolvePresence(ctx, user, types.AliasUnknown))
	}

	return result, nil
}

// resolvePresence derives the presence snapshot for one user from their
// latest location report. The unknown beacon alias differs between the
// bulk listing and the single user lookup, so the caller provides it.
func (s *service) resolvePresence(ctx context.Context, user db.User, unknownAlias string) types.UserPresence {
	presence := types.UserPresence{
		Nickname:      user.Nickname,
		DeviceUUID:    user.DeviceUUID,
		CurrentBeacon: types.AliasDisconnected,
		Status:        types.StatusAway,
	}

	report, err := s.repo.GetLatestReport(ctx, user.Nickname)
	if err != nil {
		// never reported anything, fall back to the registration row
		presence.CurrentBeacon = types.AliasUnknown
		presence.LastSeen = user.UpdatedAt
		return presence
	}

	presence.LastSeen = report.CreatedAt

	if report.BeaconIsEmpty() {
		return presence
	}

	presence.Status = types.StatusActive

	beacon, err := s.directory.FindBeacon(ctx, report.BeaconUUID, report.BeaconMajor, report.BeaconMinor)
	if err != nil {
		presence.CurrentBeacon = unknownAlias
		return presence
	}

	presence.CurrentBeacon = beacon.Alias

	return presence
}

func (s *service) GetHistory(ctx context.Context, nickname string, filter HistoryFilter) (HistoryPage, error) {
	if nickname == "" {
		return HistoryPage{}, ErrEmptyField
	}

	conditions := []db.ConditionFunc{db.WithNickname(nickname)}

	limit := filter.Limit
	if limit <= 0 {
		limit = s.cfg.pageSize()
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}

	if filter.All {
		// no window at all
	} else if filter.Date != "" {
		dayStart, err := time.ParseInLocation("2006-01-02", filter.Date, s.cfg.Location())
		if err != nil {
			return HistoryPage{}, ErrInvalidDate
		}

		conditions = append(conditions, db.WithTimeSpan(dayStart, dayStart.AddDate(0, 0, 1)))
	} else {
		offset := (page - 1) * limit
		if filter.Offset != nil {
			offset = *filter.Offset
		}

		conditions = append(conditions, db.WithLimit(limit), db.WithOffset(offset))
	}

	collection, err := s.repo.QueryReports(ctx, conditions...)
	if err != nil {
		return HistoryPage{}, err
	}

	entries := make([]types.HistoryEntry, 0, len(collection.Data))
	for _, report := range collection.Data {
		entries = append(entries, s.toHistoryEntry(ctx, report))
	}

	// the requested page and limit are echoed back even when the query
	// itself was not windowed (all or date filtered)
	return HistoryPage{
		Data:       entries,
		Total:      int(collection.TotalCount),
		Page:       page,
		Limit:      limit,
		TotalPages: (int(collection.TotalCount) + limit - 1) / limit,
	}, nil
}

// toHistoryEntry annotates a stored report with the beacon alias as the
// directory resolves it right now. Editing the directory retroactively
// changes how old reports are displayed.
func (s *service) toHistoryEntry(ctx context.Context, report db.LocationReport) types.HistoryEntry {
	entry := types.HistoryEntry{
		ID:          report.ID,
		Nickname:    report.Nickname,
		BeaconUUID:  report.BeaconUUID,
		BeaconMajor: report.BeaconMajor,
		BeaconMinor: report.BeaconMinor,
		Timestamp:   report.Timestamp,
		CreatedAt:   report.CreatedAt,
		APILogID:    report.APILogID,
	}

	if report.BeaconIsEmpty() {
		entry.BeaconAlias = types.AliasDisconnected
		return entry
	}

	beacon, err := s.directory.FindBeacon(ctx, report.BeaconUUID, report.BeaconMajor, report.BeaconMinor)
	if err != nil {
		entry.BeaconAlias = types.AliasUnknownBeacon
		return entry
	}

	entry.BeaconAlias = beacon.Alias

	return entry
}

func (s *service) GetHistoryDates(ctx context.Context, nickname string) ([]string, error) {
	if nickname == "" {
		return nil, ErrEmptyField
	}

	times, err := s.repo.GetReportTimes(ctx, nickname)
	if err != nil {
		return nil, err
	}

	loc := s.cfg.Location()

	dates := lo.Map(times, func(t time.Time, _ int) string {
		return t.In(loc).Format("2006-01-02")
	})

	return lo.Uniq(dates), nil
}

func (s *service) ResetHistory(ctx context.Context, nickname string) error {
	if nickname == "" {
		return ErrEmptyField
	}

	err := s.repo.DeleteReports(ctx, nickname)
	if err != nil {
		return err
	}

	s.notifyUsersChanged(ctx)
	s.notifyHistoryChanged(ctx, nickname)

	return nil
}

func (s *service) DeleteUser(ctx context.Context, nickname string) error {
	if nickname == "" {
		return ErrEmptyField
	}

	err := s.repo.DeleteUser(ctx, nickname)
	if err != nil {
		return err
	}

	s.notifyUsersChanged(ctx)
	s.notifyHistoryChanged(ctx, nickname)

	return nil
}

func (s *service) notifyUsersChanged(ctx context.Context) {
	logger := logging.GetFromContext(ctx)

	err := s.webevents.PublishUsersChanged(struct{}{})
	if err != nil {
		logger.Error().Err(err).Msg("failed to publish users changed event")
	}
}

func (s *service) notifyHistoryChanged(ctx context.Context, nickname string) {
	logger := logging.GetFromContext(ctx)

	err := s.webevents.PublishHistoryChanged(nickname, struct{}{})
	if err != nil {
		logger.Error().Err(err).Msg("failed to publish history changed event")
	}
}

// publishEvent pushes a domain event to the message broker and to any
// webhook subscribers. Delivery is best effort, failures are logged and
// never fail the operation that produced the event.
func (s *service) publishEvent(ctx context.Context, topic, subject string, event messaging.TopicMessage) {
	logger := logging.GetFromContext(ctx)

	err := s.messenger.PublishOnTopic(ctx, event)
	if err != nil {
		logger.Error().Err(err).Msgf("failed to publish %s on topic", topic)
	}

	err = s.sender.Send(ctx, topic, subject, event)
	if err != nil {
		logger.Error().Err(err).Msgf("failed to send %s to subscribers", topic)
	}
}
