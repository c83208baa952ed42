package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/indoorpos/presence-mgmt/internal/pkg/application/auditlog"
	"github.com/indoorpos/presence-mgmt/internal/pkg/application/beacons"
	"github.com/indoorpos/presence-mgmt/internal/pkg/application/presence"
	"github.com/indoorpos/presence-mgmt/internal/pkg/application/webevents"
	"github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/logging"
	"github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/tracing"
	"github.com/indoorpos/presence-mgmt/internal/pkg/presentation/api/auth"
	"github.com/indoorpos/presence-mgmt/pkg/types"
)

var tracer = otel.Tracer("presence-mgmt/api")

var startedAt = time.Now()

func RegisterHandlers(ctx context.Context, router *chi.Mux, policies io.Reader, svc presence.PresenceTracker, directory beacons.BeaconDirectory, audit auditlog.AuditLog, we webevents.WebEvents) (*chi.Mux, error) {

	log := logging.GetFromContext(ctx)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	authenticator, err := auth.NewAuthenticator(ctx, log, policies)
	if err != nil {
		return nil, fmt.Errorf("failed to create api authenticator: %w", err)
	}

	router.Route("/api", func(r chi.Router) {
		r.Post("/users", registerUserHandler(log, svc, audit))
		r.Post("/locations/report", reportLocationHandler(log, svc, audit))

		r.Get("/external/beacons", getBeaconsHandler(log, directory))

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticator)

			r.Get("/users", getUsersHandler(log, svc))
			r.Get("/users/{nickname}", getUserPresenceHandler(log, svc))
			r.Delete("/users/{nickname}", deleteUserHandler(log, svc))

			r.Get("/locations/{nickname}", getHistoryHandler(log, svc))
			r.Get("/locations/{nickname}/dates", getHistoryDatesHandler(log, svc))
			r.Delete("/locations/{nickname}", resetHistoryHandler(log, svc))

			r.Post("/beacons", addBeaconHandler(log, directory))

			r.Get("/logs/{id}", getAuditLogHandler(log, audit))
			r.Get("/system/status", systemStatusHandler(log))
		})
	})

	router.Mount("/events", we.Server())

	return router, nil
}

func registerUserHandler(log zerolog.Logger, svc presence.PresenceTracker, audit auditlog.AuditLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "register-user")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			newResponse(http.StatusBadRequest, "unable to read request body", nil).write(w)
			return
		}

		logID := recordRequest(ctx, audit, r, body)

		req := registrationRequest{}
		err = json.Unmarshal(body, &req)
		if err != nil {
			respond(ctx, audit, logID, w, newResponse(http.StatusBadRequest, "request body is not valid json", nil))
			return
		}

		registration, err := svc.RegisterUser(ctx, req.DeviceUUID, req.nickname())
		if err != nil {
			if errors.Is(err, presence.ErrEmptyField) {
				respond(ctx, audit, logID, w, newResponse(http.StatusBadRequest, "nickName and deviceUuid are required", nil))
				return
			}

			log.Error().Err(err).Msg("failed to register user")
			respond(ctx, audit, logID, w, newResponse(http.StatusInternalServerError, "failed to register user", nil))
			return
		}

		respond(ctx, audit, logID, w, newResponse(http.StatusOK, "user registered", registration))
	}
}

func reportLocationHandler(log zerolog.Logger, svc presence.PresenceTracker, audit auditlog.AuditLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "report-location")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			newResponse(http.StatusBadRequest, "unable to read request body", nil).write(w)
			return
		}

		logID := recordRequest(ctx, audit, r, body)

		req := locationReportRequest{}
		err = json.Unmarshal(body, &req)
		if err != nil {
			respond(ctx, audit, logID, w, newResponse(http.StatusBadRequest, "request body is not valid json", nil))
			return
		}

		report := presence.IncomingReport{
			Nickname:    req.nickname(),
			BeaconUUID:  req.BeaconUUID,
			BeaconMajor: req.BeaconMajor,
			BeaconMinor: req.BeaconMinor,
			Timestamp:   req.Timestamp,
		}
		if logID != 0 {
			report.APILogID = &logID
		}

		err = svc.ReportLocation(ctx, report)
		if err != nil {
			if errors.Is(err, presence.ErrEmptyField) {
				respond(ctx, audit, logID, w, newResponse(http.StatusBadRequest, "nickName is required", nil))
				return
			}

			log.Error().Err(err).Msg("failed to store location report")
			respond(ctx, audit, logID, w, newResponse(http.StatusInternalServerError, "failed to store location report", nil))
			return
		}

		respond(ctx, audit, logID, w, newResponse(http.StatusOK, "location reported", nil))
	}
}

func getUsersHandler(log zerolog.Logger, svc presence.PresenceTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "get-users")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		users, err := svc.GetUsersWithPresence(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to list users")
			newResponse(http.StatusInternalServerError, "failed to list users", nil).write(w)
			return
		}

		newResponse(http.StatusOK, "users retrieved", users).write(w)
	}
}

func getUserPresenceHandler(log zerolog.Logger, svc presence.PresenceTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "get-user-presence")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		nickname := chi.URLParam(r, "nickname")

		userPresence, err := svc.GetPresence(ctx, nickname)
		if err != nil {
			if errors.Is(err, presence.ErrUserNotFound) {
				newResponse(http.StatusNotFound, "user not found", nil).write(w)
				return
			}

			log.Error().Err(err).Msg("failed to get presence")
			newResponse(http.StatusInternalServerError, "failed to get presence", nil).write(w)
			return
		}

		newResponse(http.StatusOK, "presence retrieved", userPresence).write(w)
	}
}

func deleteUserHandler(log zerolog.Logger, svc presence.PresenceTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "delete-user")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		nickname := chi.URLParam(r, "nickname")

		err = svc.DeleteUser(ctx, nickname)
		if err != nil {
			if errors.Is(err, presence.ErrUserNotFound) {
				newResponse(http.StatusNotFound, "user not found", nil).write(w)
				return
			}

			log.Error().Err(err).Msg("failed to delete user")
			newResponse(http.StatusInternalServerError, "failed to delete user", nil).write(w)
			return
		}

		newResponse(http.StatusOK, "user deleted", nil).write(w)
	}
}

func getHistoryHandler(log zerolog.Logger, svc presence.PresenceTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "get-history")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		nickname := chi.URLParam(r, "nickname")
		query := r.URL.Query()

		filter := presence.HistoryFilter{
			Date: query.Get("date"),
		}

		filter.Page, _ = strconv.Atoi(query.Get("page"))
		filter.Limit, _ = strconv.Atoi(query.Get("limit"))
		filter.All, _ = strconv.ParseBool(query.Get("all"))

		if query.Has("offset") {
			if offset, err := strconv.Atoi(query.Get("offset")); err == nil {
				filter.Offset = &offset
			}
		}

		page, err := svc.GetHistory(ctx, nickname, filter)
		if err != nil {
			if errors.Is(err, presence.ErrInvalidDate) {
				newResponse(http.StatusBadRequest, "date must be on the form YYYY-MM-DD", nil).write(w)
				return
			}

			log.Error().Err(err).Msg("failed to query history")
			newResponse(http.StatusInternalServerError, "failed to query history", nil).write(w)
			return
		}

		resp := newResponse(http.StatusOK, "history retrieved", page.Data)
		resp.Total = &page.Total
		resp.Page = &page.Page
		resp.Limit = &page.Limit
		resp.TotalPages = &page.TotalPages
		resp.write(w)
	}
}

func getHistoryDatesHandler(log zerolog.Logger, svc presence.PresenceTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "get-history-dates")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		nickname := chi.URLParam(r, "nickname")

		dates, err := svc.GetHistoryDates(ctx, nickname)
		if err != nil {
			log.Error().Err(err).Msg("failed to list history dates")
			newResponse(http.StatusInternalServerError, "failed to list history dates", nil).write(w)
			return
		}

		newResponse(http.StatusOK, "dates retrieved", dates).write(w)
	}
}

func resetHistoryHandler(log zerolog.Logger, svc presence.PresenceTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "reset-history")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		nickname := chi.URLParam(r, "nickname")

		err = svc.ResetHistory(ctx, nickname)
		if err != nil {
			log.Error().Err(err).Msg("failed to reset history")
			newResponse(http.StatusInternalServerError, "failed to reset history", nil).write(w)
			return
		}

		newResponse(http.StatusOK, "history reset", nil).write(w)
	}
}

func getBeaconsHandler(log zerolog.Logger, directory beacons.BeaconDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "get-beacons")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		result, err := directory.GetBeacons(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to list beacons")
			newResponse(http.StatusInternalServerError, "failed to list beacons", nil).write(w)
			return
		}

		newResponse(http.StatusOK, "beacons retrieved", result).write(w)
	}
}

func addBeaconHandler(log zerolog.Logger, directory beacons.BeaconDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "add-beacon")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		beacon := types.Beacon{}
		err = json.NewDecoder(r.Body).Decode(&beacon)
		if err != nil {
			newResponse(http.StatusBadRequest, "request body is not valid json", nil).write(w)
			return
		}

		if beacon.IsEmpty() {
			newResponse(http.StatusBadRequest, "beacon identity is required", nil).write(w)
			return
		}

		err = directory.AddBeacon(ctx, beacon)
		if err != nil {
			log.Error().Err(err).Msg("failed to save beacon")
			newResponse(http.StatusInternalServerError, "failed to save beacon", nil).write(w)
			return
		}

		newResponse(http.StatusCreated, "beacon saved", beacon).write(w)
	}
}

func getAuditLogHandler(log zerolog.Logger, audit auditlog.AuditLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "get-audit-log")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
		if err != nil {
			newResponse(http.StatusBadRequest, "id must be numeric", nil).write(w)
			return
		}

		entry, err := audit.GetByID(ctx, uint(id))
		if err != nil {
			if errors.Is(err, auditlog.ErrLogNotFound) {
				newResponse(http.StatusNotFound, "log entry not found", nil).write(w)
				return
			}

			log.Error().Err(err).Msg("failed to get log entry")
			newResponse(http.StatusInternalServerError, "failed to get log entry", nil).write(w)
			return
		}

		newResponse(http.StatusOK, "log entry retrieved", entry).write(w)
	}
}

func systemStatusHandler(log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		status := systemStatus{
			Status:         "ok",
			Version:        version(),
			Uptime:         time.Since(startedAt).Round(time.Second).String(),
			GoRoutines:     runtime.NumGoroutine(),
			HeapAllocBytes: memStats.HeapAlloc,
			NumCPU:         runtime.NumCPU(),
		}

		newResponse(http.StatusOK, "status retrieved", status).write(w)
	}
}

func version() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	buildSettings := buildInfo.Settings
	for _, s := range buildSettings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}

	return buildInfo.Main.Version
}

// recordRequest stores the request half of an audit log entry. Audit
// logging is best effort and must never fail the request itself, so a
// failure yields log id 0 which downstream code treats as "no entry".
func recordRequest(ctx context.Context, audit auditlog.AuditLog, r *http.Request, body []byte) uint {
	id, err := audit.Record(ctx, auditlog.Entry{
		Method:         r.Method,
		URL:            r.URL.String(),
		RequestHeaders: r.Header,
		RequestBody:    body,
	})
	if err != nil {
		logger := logging.GetFromContext(ctx)
		logger.Error().Err(err).Msg("failed to record audit log entry")
		return 0
	}

	return id
}

func respond(ctx context.Context, audit auditlog.AuditLog, logID uint, w http.ResponseWriter, resp response) {
	b := resp.write(w)

	if logID == 0 {
		return
	}

	err := audit.RecordResponse(ctx, logID, resp.Code, w.Header(), b)
	if err != nil {
		logger := logging.GetFromContext(ctx)
		logger.Error().Err(err).Msg("failed to record audit log response")
	}
}
