package auditlog

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/repositories/database"
	db "github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/repositories/database/auditlog"
	"github.com/matryer/is"
)

func TestRecordStoresEntry(t *testing.T) {
	is, ctx, a := testSetupAuditLog(t, Config{})

	id, err := a.Record(ctx, Entry{
		Method:         "POST",
		URL:            "/api/users",
		RequestHeaders: http.Header{"Content-Type": []string{"application/json"}},
		RequestBody:    []byte(`{"nickName":"alice","deviceUuid":"device-1"}`),
		ResponseStatus: 200,
		ResponseBody:   []byte(`{"success":true}`),
	})
	is.NoErr(err)
	is.True(id != 0)

	entry, err := a.GetByID(ctx, id)
	is.NoErr(err)
	is.Equal("POST", entry.Method)
	is.Equal(200, entry.ResponseStatus)
	is.True(strings.Contains(entry.RequestHeaders, "Content-Type"))
}

func TestRecordResponse(t *testing.T) {
	is, ctx, a := testSetupAuditLog(t, Config{})

	id, err := a.Record(ctx, Entry{Method: "POST", URL: "/api/users"})
	is.NoErr(err)

	headers := http.Header{"Content-Type": []string{"application/json"}}

	err = a.RecordResponse(ctx, id, 400, headers, []byte(`{"success":false}`))
	is.NoErr(err)

	entry, err := a.GetByID(ctx, id)
	is.NoErr(err)
	is.Equal(400, entry.ResponseStatus)
	is.Equal(`{"success":false}`, entry.ResponseBody)
	is.True(strings.Contains(entry.ResponseHeaders, "Content-Type"))
}

func TestGetUnknownEntry(t *testing.T) {
	is, ctx, a := testSetupAuditLog(t, Config{})

	_, err := a.GetByID(ctx, 4711)
	is.True(err == ErrLogNotFound)
}

func TestConfigDefaults(t *testing.T) {
	is := is.New(t)

	cfg := Config{}
	is.Equal(720*time.Hour, cfg.maxAge())
	is.Equal(time.Hour, cfg.purgeInterval())

	cfg = Config{MaxAge: "24h", PurgeInterval: "10m"}
	is.Equal(24*time.Hour, cfg.maxAge())
	is.Equal(10*time.Minute, cfg.purgeInterval())
}

func TestSweeperStopsOnContextCancel(t *testing.T) {
	_, ctx, a := testSetupAuditLog(t, Config{PurgeInterval: "1ms"})

	ctx, cancel := context.WithCancel(ctx)
	a.Start(ctx)

	time.Sleep(10 * time.Millisecond)
	cancel()
	a.Stop()
}

func testSetupAuditLog(t *testing.T, cfg Config) (*is.I, context.Context, AuditLog) {
	is := is.New(t)
	ctx := context.Background()

	repo, err := db.NewAuditLogRepository(database.NewSQLiteConnector(ctx))
	is.NoErr(err)

	return is, ctx, New(repo, cfg)
}
