package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"runtime/debug"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"

	"github.com/indoorpos/presence-mgmt/internal/pkg/application/auditlog"
	"github.com/indoorpos/presence-mgmt/internal/pkg/application/beacons"
	"github.com/indoorpos/presence-mgmt/internal/pkg/application/presence"
	"github.com/indoorpos/presence-mgmt/internal/pkg/application/subscribers"
	"github.com/indoorpos/presence-mgmt/internal/pkg/application/webevents"
	"github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/logging"
	"github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/repositories/database"
	auditdb "github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/repositories/database/auditlog"
	beacondb "github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/repositories/database/beacons"
	presencedb "github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/repositories/database/presence"
	"github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/router"
	"github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/tracing"
	"github.com/indoorpos/presence-mgmt/internal/pkg/presentation/api"
)

const serviceName string = "presence-mgmt"

type appConfig struct {
	Presence    presence.Config    `yaml:"presence"`
	AuditLog    auditlog.Config    `yaml:"auditlog"`
	Subscribers subscribers.Config `yaml:"subscribers"`
}

func main() {
	serviceVersion := version()

	ctx, logger := logging.NewLogger(context.Background(), serviceName, serviceVersion)
	logger.Info().Msg("starting up ...")

	cleanup, err := tracing.Init(ctx, logger, serviceName, serviceVersion)
	exitIf(err, logger, "failed to init tracing")
	defer cleanup()

	var configFilePath, policyFilePath, beaconsFilePath string
	var devmode bool

	flag.StringVar(&configFilePath, "config", envOrDefault("APP_CONFIG_FILE", "/opt/presence/config/config.yaml"), "path to the application config file")
	flag.StringVar(&policyFilePath, "policies", envOrDefault("AUTHZ_POLICY_FILE", "/opt/presence/config/authz.rego"), "path to an opa policy file")
	flag.StringVar(&beaconsFilePath, "beacons", envOrDefault("BEACONS_FILE", "/opt/presence/config/beacons.csv"), "path to a beacon seed file")
	flag.BoolVar(&devmode, "devmode", os.Getenv("DEVMODE") == "true", "run with an in-memory database and no message broker")
	flag.Parse()

	cfg, err := loadAppConfig(configFilePath)
	exitIf(err, logger, "unable to load application config")

	policies, err := os.Open(policyFilePath)
	exitIf(err, logger, "unable to open opa policy file")
	defer policies.Close()

	connect := newConnector(ctx, logger, devmode)

	presenceRepo, err := presencedb.NewPresenceRepository(connect)
	exitIf(err, logger, "failed to connect to presence repository")

	beaconRepo, err := beacondb.NewBeaconRepository(connect)
	exitIf(err, logger, "failed to connect to beacon repository")

	auditRepo, err := auditdb.NewAuditLogRepository(connect)
	exitIf(err, logger, "failed to connect to audit log repository")

	directory := beacons.New(beaconRepo)
	seedBeacons(ctx, logger, directory, beaconsFilePath)

	messenger := newMessenger(ctx, logger, devmode)
	defer messenger.Close()

	sender := subscribers.New(&cfg.Subscribers)

	we := webevents.New()
	defer we.Shutdown()

	audit := auditlog.New(auditRepo, cfg.AuditLog)
	audit.Start(ctx)
	defer audit.Stop()

	svc := presence.New(presenceRepo, directory, messenger, sender, we, cfg.Presence)

	if !devmode {
		err = svc.RegisterTopicMessageHandler(ctx)
		exitIf(err, logger, "failed to register topic message handler")
	}

	r, err := api.RegisterHandlers(ctx, router.New(serviceName), policies, svc, directory, audit, we)
	exitIf(err, logger, "failed to register handlers")

	apiPort := envOrDefault("SERVICE_PORT", "8080")

	logger.Info().Msgf("listening on port %s", apiPort)

	err = http.ListenAndServe(":"+apiPort, r)
	exitIf(err, logger, "failed to start request router")
}

func newConnector(ctx context.Context, logger zerolog.Logger, devmode bool) database.ConnectorFunc {
	if devmode {
		logger.Warn().Msg("running in devmode with an in-memory database")
		return database.NewSQLiteConnector(ctx)
	}

	return database.NewPostgreSQLConnector(ctx, database.LoadConfigFromEnv())
}

func newMessenger(ctx context.Context, logger zerolog.Logger, devmode bool) messaging.MsgContext {
	if devmode {
		logger.Warn().Msg("running in devmode without a message broker")
		return &messaging.MsgContextMock{
			PublishOnTopicFunc: func(ctx context.Context, message messaging.TopicMessage) error {
				return nil
			},
			CloseFunc: func() {},
		}
	}

	config := messaging.LoadConfiguration(serviceName, logging.GetFromContext(ctx))
	messenger, err := messaging.Initialize(config)
	exitIf(err, logging.GetFromContext(ctx), "failed to init messaging")

	return messenger
}

func loadAppConfig(path string) (*appConfig, error) {
	cfg := &appConfig{}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(b, cfg)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func seedBeacons(ctx context.Context, logger zerolog.Logger, directory beacons.BeaconDirectory, path string) {
	f, err := os.Open(path)
	if err != nil {
		logger.Warn().Err(err).Msg("no beacon seed file found")
		return
	}
	defer f.Close()

	err = directory.Seed(ctx, f)
	exitIf(err, logger, "failed to seed beacons")
}

func version() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	for _, s := range buildInfo.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}

	return buildInfo.Main.Version
}

func envOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return defaultValue
}

func exitIf(err error, logger zerolog.Logger, msg string) {
	if err != nil {
		logger.Fatal().Err(err).Msg(msg)
	}
}
