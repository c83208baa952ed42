package presence

import (
	"context"
	"testing"
	"time"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/indoorpos/presence-mgmt/internal/pkg/application/beacons"
	"github.com/indoorpos/presence-mgmt/internal/pkg/application/subscribers"
	"github.com/indoorpos/presence-mgmt/internal/pkg/application/webevents"
	"github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/repositories/database"
	beacondb "github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/repositories/database/beacons"
	db "github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/repositories/database/presence"
	"github.com/indoorpos/presence-mgmt/pkg/types"
	"github.com/matryer/is"
	"gorm.io/gorm"
)

func TestRegisterUserRejectsEmptyFields(t *testing.T) {
	is, ctx, tf := testSetup(t)

	_, err := tf.svc.RegisterUser(ctx, "", "alice")
	is.True(err == ErrEmptyField)

	_, err = tf.svc.RegisterUser(ctx, "device-1", "")
	is.True(err == ErrEmptyField)
}

func TestRegisterUserPublishesEvent(t *testing.T) {
	is, ctx, tf := testSetup(t)

	registration, err := tf.svc.RegisterUser(ctx, "device-1", "alice")
	is.NoErr(err)
	is.Equal("alice", registration.Nickname)

	published := tf.msgCtx.PublishOnTopicCalls()
	is.Equal(1, len(published))
	is.Equal("presence.userRegistered", published[0].Message.TopicName())
}

func TestReportLocationRejectsEmptyNickname(t *testing.T) {
	is, ctx, tf := testSetup(t)

	err := tf.svc.ReportLocation(ctx, IncomingReport{})
	is.True(err == ErrEmptyField)
}

func TestPresenceScenario(t *testing.T) {
	is, ctx, tf := testSetup(t)

	is.NoErr(tf.directory.AddBeacon(ctx, types.Beacon{UUID: "U1", Major: "1", Minor: "1", Alias: "Lobby"}))

	_, err := tf.svc.RegisterUser(ctx, "D1", "Alice")
	is.NoErr(err)

	err = tf.svc.ReportLocation(ctx, IncomingReport{Nickname: "Alice", BeaconUUID: "U1", BeaconMajor: "1", BeaconMinor: "1"})
	is.NoErr(err)

	presence, err := tf.svc.GetPresence(ctx, "Alice")
	is.NoErr(err)
	is.Equal(types.StatusActive, presence.Status)
	is.Equal("Lobby", presence.CurrentBeacon)

	// empty beacon triple means the client lost contact with every beacon
	err = tf.svc.ReportLocation(ctx, IncomingReport{Nickname: "Alice"})
	is.NoErr(err)

	presence, err = tf.svc.GetPresence(ctx, "Alice")
	is.NoErr(err)
	is.Equal(types.StatusAway, presence.Status)
	is.Equal(types.AliasDisconnected, presence.CurrentBeacon)
}

func TestPresenceForUnknownBeacon(t *testing.T) {
	is, ctx, tf := testSetup(t)

	_, err := tf.svc.RegisterUser(ctx, "D1", "Alice")
	is.NoErr(err)

	err = tf.svc.ReportLocation(ctx, IncomingReport{Nickname: "Alice", BeaconUUID: "U9", BeaconMajor: "9", BeaconMinor: "9"})
	is.NoErr(err)

	presence, err := tf.svc.GetPresence(ctx, "Alice")
	is.NoErr(err)
	is.Equal(types.StatusActive, presence.Status)
	is.Equal(types.AliasOutsideRange, presence.CurrentBeacon)

	// the bulk listing uses a different wording for the same state
	users, err := tf.svc.GetUsersWithPresence(ctx)
	is.NoErr(err)
	is.Equal(1, len(users))
	is.Equal(types.AliasUnknown, users[0].CurrentBeacon)
}

func TestPresenceWithoutAnyReports(t *testing.T) {
	is, ctx, tf := testSetup(t)

	_, err := tf.svc.RegisterUser(ctx, "D1", "Alice")
	is.NoErr(err)

	users, err := tf.svc.GetUsersWithPresence(ctx)
	is.NoErr(err)
	is.Equal(1, len(users))
	is.Equal(types.StatusAway, users[0].Status)
	is.Equal(types.AliasUnknown, users[0].CurrentBeacon)

	// without any report the registration row provides the last seen time
	is.True(!users[0].LastSeen.IsZero())
}

func TestGetPresenceForUnknownUser(t *testing.T) {
	is, ctx, tf := testSetup(t)

	_, err := tf.svc.GetPresence(ctx, "nobody")
	is.True(err == ErrUserNotFound)
}

func TestHistoryPaging(t *testing.T) {
	is, ctx, tf := testSetup(t)

	t0 := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tf.addReportAt(is, ctx, "alice", "U1", t0.Add(time.Duration(i)*time.Minute))
	}

	page, err := tf.svc.GetHistory(ctx, "alice", HistoryFilter{Limit: 2, Page: 2})
	is.NoErr(err)
	is.Equal(5, page.Total)
	is.Equal(2, page.Page)
	is.Equal(2, page.Limit)
	is.Equal(3, page.TotalPages)
	is.Equal(2, len(page.Data))

	// newest first, page 2 holds items 3 and 4
	is.Equal(t0.Add(2*time.Minute).Unix(), page.Data[0].CreatedAt.Unix())
	is.Equal(t0.Add(1*time.Minute).Unix(), page.Data[1].CreatedAt.Unix())
}

func TestHistoryExplicitOffsetOverridesPage(t *testing.T) {
	is, ctx, tf := testSetup(t)

	t0 := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tf.addReportAt(is, ctx, "alice", "U1", t0.Add(time.Duration(i)*time.Minute))
	}

	offset := 4
	page, err := tf.svc.GetHistory(ctx, "alice", HistoryFilter{Limit: 2, Page: 1, Offset: &offset})
	is.NoErr(err)
	is.Equal(1, len(page.Data))
	is.Equal(t0.Unix(), page.Data[0].CreatedAt.Unix())
}

func TestHistoryDateFilterOverridesPaging(t *testing.T) {
	is, ctx, tf := testSetup(t)

	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	tf.addReportAt(is, ctx, "alice", "U1", day.Add(-time.Hour))
	for i := 0; i < 3; i++ {
		tf.addReportAt(is, ctx, "alice", "U1", day.Add(time.Duration(10+i)*time.Hour))
	}
	tf.addReportAt(is, ctx, "alice", "U1", day.Add(25*time.Hour))

	page, err := tf.svc.GetHistory(ctx, "alice", HistoryFilter{Date: "2026-01-05", Limit: 1, Page: 2})
	is.NoErr(err)
	is.Equal(3, page.Total)
	is.Equal(3, len(page.Data))

	// the requested page and limit are echoed back even though the date
	// filter returned the whole day
	is.Equal(2, page.Page)
	is.Equal(1, page.Limit)
	is.Equal(3, page.TotalPages)
}

func TestHistoryRejectsInvalidDate(t *testing.T) {
	is, ctx, tf := testSetup(t)

	_, err := tf.svc.GetHistory(ctx, "alice", HistoryFilter{Date: "05/01/2026"})
	is.True(err == ErrInvalidDate)
}

func TestHistoryAll(t *testing.T) {
	is, ctx, tf := testSetup(t)

	t0 := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tf.addReportAt(is, ctx, "alice", "U1", t0.Add(time.Duration(i)*time.Minute))
	}

	page, err := tf.svc.GetHistory(ctx, "alice", HistoryFilter{All: true, Limit: 2})
	is.NoErr(err)
	is.Equal(5, len(page.Data))
	is.Equal(1, page.Page)
	is.Equal(2, page.Limit)
	is.Equal(3, page.TotalPages)
}

func TestHistoryAnnotatesBeaconAliases(t *testing.T) {
	is, ctx, tf := testSetup(t)

	is.NoErr(tf.directory.AddBeacon(ctx, types.Beacon{UUID: "U1", Major: "1", Minor: "1", Alias: "Lobby"}))

	is.NoErr(tf.svc.ReportLocation(ctx, IncomingReport{Nickname: "alice", BeaconUUID: "U1", BeaconMajor: "1", BeaconMinor: "1"}))
	is.NoErr(tf.svc.ReportLocation(ctx, IncomingReport{Nickname: "alice", BeaconUUID: "U9", BeaconMajor: "9", BeaconMinor: "9"}))
	is.NoErr(tf.svc.ReportLocation(ctx, IncomingReport{Nickname: "alice"}))

	page, err := tf.svc.GetHistory(ctx, "alice", HistoryFilter{All: true})
	is.NoErr(err)
	is.Equal(3, len(page.Data))
	is.Equal(types.AliasDisconnected, page.Data[0].BeaconAlias)
	is.Equal(types.AliasUnknownBeacon, page.Data[1].BeaconAlias)
	is.Equal("Lobby", page.Data[2].BeaconAlias)
}

func TestHistoryDates(t *testing.T) {
	is, ctx, tf := testSetup(t)

	day1 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)

	tf.addReportAt(is, ctx, "alice", "U1", day1)
	tf.addReportAt(is, ctx, "alice", "U1", day1.Add(time.Hour))
	tf.addReportAt(is, ctx, "alice", "U1", day2)

	dates, err := tf.svc.GetHistoryDates(ctx, "alice")
	is.NoErr(err)
	is.Equal([]string{"2026-01-06", "2026-01-05"}, dates)
}

func TestResetHistory(t *testing.T) {
	is, ctx, tf := testSetup(t)

	tf.addReportAt(is, ctx, "alice", "U1", time.Now())

	is.NoErr(tf.svc.ResetHistory(ctx, "alice"))

	page, err := tf.svc.GetHistory(ctx, "alice", HistoryFilter{All: true})
	is.NoErr(err)
	is.Equal(0, page.Total)

	dates, err := tf.svc.GetHistoryDates(ctx, "alice")
	is.NoErr(err)
	is.Equal(0, len(dates))
}

func TestDeleteUser(t *testing.T) {
	is, ctx, tf := testSetup(t)

	_, err := tf.svc.RegisterUser(ctx, "D1", "Alice")
	is.NoErr(err)
	tf.addReportAt(is, ctx, "Alice", "U1", time.Now())

	is.NoErr(tf.svc.DeleteUser(ctx, "Alice"))

	_, err = tf.svc.GetPresence(ctx, "Alice")
	is.True(err == ErrUserNotFound)
}

type testFixture struct {
	svc       PresenceTracker
	repo      db.PresenceRepository
	directory beacons.BeaconDirectory
	msgCtx    *messaging.MsgContextMock
}

func (tf *testFixture) addReportAt(is *is.I, ctx context.Context, nickname, beaconUUID string, createdAt time.Time) {
	is.NoErr(tf.repo.AddReport(ctx, &db.LocationReport{
		Model:       gorm.Model{CreatedAt: createdAt},
		Nickname:    nickname,
		BeaconUUID:  beaconUUID,
		BeaconMajor: "1",
		BeaconMinor: "1",
	}))
}

func testSetup(t *testing.T) (*is.I, context.Context, *testFixture) {
	is := is.New(t)
	ctx := context.Background()

	repo, err := db.NewPresenceRepository(database.NewSQLiteConnector(ctx))
	is.NoErr(err)

	beaconRepo, err := beacondb.NewBeaconRepository(database.NewSQLiteConnector(ctx))
	is.NoErr(err)

	directory := beacons.New(beaconRepo)

	msgCtx := &messaging.MsgContextMock{
		PublishOnTopicFunc: func(ctx context.Context, message messaging.TopicMessage) error {
			return nil
		},
	}

	we := webevents.New()
	t.Cleanup(we.Shutdown)

	svc := New(repo, directory, msgCtx, subscribers.New(nil), we, Config{Timezone: "UTC"})

	return is, ctx, &testFixture{
		svc:       svc,
		repo:      repo,
		directory: directory,
		msgCtx:    msgCtx,
	}
}
