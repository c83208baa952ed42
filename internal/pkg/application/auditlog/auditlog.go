package auditlog

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/logging"
	db "github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/repositories/database/auditlog"
)

var ErrLogNotFound = db.ErrLogNotFound

// Entry is the request/response pair that gets recorded for a handled
// API call.
type Entry struct {
	Method          string
	URL             string
	RequestHeaders  http.Header
	RequestBody     []byte
	ResponseStatus  int
	ResponseHeaders http.Header
	ResponseBody    []byte
}

//go:generate moq -rm -out auditlog_mock.go . AuditLog

type AuditLog interface {
	Record(ctx context.Context, entry Entry) (uint, error)
	RecordResponse(ctx context.Context, id uint, status int, responseHeaders http.Header, responseBody []byte) error
	GetByID(ctx context.Context, id uint) (db.APILog, error)
	Start(ctx context.Context)
	Stop()
}

type Config struct {
	MaxAge        string `yaml:"maxAge"`
	PurgeInterval string `yaml:"purgeInterval"`
}

func (c Config) maxAge() time.Duration {
	if d, err := time.ParseDuration(c.MaxAge); err == nil && d > 0 {
		return d
	}

	return 720 * time.Hour
}

func (c Config) purgeInterval() time.Duration {
	if d, err := time.ParseDuration(c.PurgeInterval); err == nil && d > 0 {
		return d
	}

	return time.Hour
}

func New(repo db.AuditLogRepository, cfg Config) AuditLog {
	return &auditLog{
		repo: repo,
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

type auditLog struct {
	repo db.AuditLogRepository
	cfg  Config
	done chan struct{}
}

func (a *auditLog) Record(ctx context.Context, entry Entry) (uint, error) {
	requestHeaders, _ := json.Marshal(entry.RequestHeaders)
	responseHeaders, _ := json.Marshal(entry.ResponseHeaders)

	row := &db.APILog{
		Method:          entry.Method,
		URL:             entry.URL,
		RequestHeaders:  string(requestHeaders),
		RequestBody:     string(entry.RequestBody),
		ResponseStatus:  entry.ResponseStatus,
		ResponseHeaders: string(responseHeaders),
		ResponseBody:    string(entry.ResponseBody),
	}

	err := a.repo.Add(ctx, row)
	if err != nil {
		return 0, err
	}

	return row.ID, nil
}

func (a *auditLog) RecordResponse(ctx context.Context, id uint, status int, responseHeaders http.Header, responseBody []byte) error {
	headers, _ := json.Marshal(responseHeaders)

	return a.repo.SetResponse(ctx, id, status, string(headers), string(responseBody))
}

func (a *auditLog) GetByID(ctx context.Context, id uint) (db.APILog, error) {
	return a.repo.GetByID(ctx, id)
}

// Start launches the retention sweeper that purges log entries older
// than the configured max age. It returns immediately.
func (a *auditLog) Start(ctx context.Context) {
	go a.purgeWorker(ctx)
}

func (a *auditLog) Stop() {
	close(a.done)
}

func (a *auditLog) purgeWorker(ctx context.Context) {
	logger := logging.GetFromContext(ctx)

	ticker := time.NewTicker(a.cfg.purgeInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case <-ticker.C:
			count, err := a.repo.DeleteOlderThan(ctx, time.Now().Add(-a.cfg.maxAge()))
			if err != nil {
				logger.Error().Err(err).Msg("failed to purge audit log")
				continue
			}

			if count > 0 {
				logger.Info().Msgf("purged %d audit log entries", count)
			}
		}
	}
}
