package presence

import (
	"context"
	"encoding/json"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/tracing"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("presence-mgmt/location-report")

// NewLocationReportHandler returns a handler for location reports that
// arrive over the message broker instead of the REST API. The payload
// matches the REST body, with userNickName accepted as an alternative
// spelling of nickName.
func NewLocationReportHandler(svc PresenceTracker) messaging.TopicMessageHandler {
	return func(ctx context.Context, msg amqp.Delivery, logger zerolog.Logger) {
		var err error

		ctx, span := tracer.Start(ctx, "location-report")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		payload := struct {
			Nickname     string `json:"nickName"`
			UserNickname string `json:"userNickName"`
			BeaconUUID   string `json:"beaconUuid"`
			BeaconMajor  string `json:"beaconMajor"`
			BeaconMinor  string `json:"beaconMinor"`
			Timestamp    string `json:"timeStamp"`
		}{}

		err = json.Unmarshal(msg.Body, &payload)
		if err != nil {
			logger.Error().Err(err).Msg("failed to unmarshal location report")
			return
		}

		nickname := payload.Nickname
		if nickname == "" {
			nickname = payload.UserNickname
		}

		err = svc.ReportLocation(ctx, IncomingReport{
			Nickname:    nickname,
			BeaconUUID:  payload.BeaconUUID,
			BeaconMajor: payload.BeaconMajor,
			BeaconMinor: payload.BeaconMinor,
			Timestamp:   payload.Timestamp,
		})
		if err != nil {
			logger.Error().Err(err).Msg("failed to store location report")
			return
		}
	}
}
