package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/logging"
	"github.com/indoorpos/presence-mgmt/internal/pkg/infrastructure/tracing"
	"github.com/indoorpos/presence-mgmt/pkg/types"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("presence-mgmt-client")

// PresenceClient is the client side of the public REST surface, meant
// for mobile clients and other services that register users and report
// beacon sightings.
type PresenceClient interface {
	RegisterUser(ctx context.Context, deviceUUID, nickname string) (types.Registration, error)
	ReportLocation(ctx context.Context, nickname string, beacon types.Beacon, timestamp string) error
	GetBeacons(ctx context.Context) ([]types.Beacon, error)
}

type presenceClient struct {
	url string
}

func New(presenceMgmtURL string) PresenceClient {
	return &presenceClient{
		url: presenceMgmtURL,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *presenceClient) RegisterUser(ctx context.Context, deviceUUID, nickname string) (types.Registration, error) {
	var err error
	ctx, span := tracer.Start(ctx, "register-user")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	body, _ := json.Marshal(types.Registration{Nickname: nickname, DeviceUUID: deviceUUID})

	result, err := c.do(ctx, http.MethodPost, "/api/users", body)
	if err != nil {
		return types.Registration{}, err
	}

	registration := types.Registration{}
	err = json.Unmarshal(result.Data, &registration)
	if err != nil {
		err = fmt.Errorf("failed to unmarshal registration: %w", err)
		return types.Registration{}, err
	}

	return registration, nil
}

func (c *presenceClient) ReportLocation(ctx context.Context, nickname string, beacon types.Beacon, timestamp string) error {
	var err error
	ctx, span := tracer.Start(ctx, "report-location")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	payload := struct {
		Nickname    string `json:"nickName"`
		BeaconUUID  string `json:"beaconUuid"`
		BeaconMajor string `json:"beaconMajor"`
		BeaconMinor string `json:"beaconMinor"`
		Timestamp   string `json:"timeStamp,omitempty"`
	}{
		Nickname:    nickname,
		BeaconUUID:  beacon.UUID,
		BeaconMajor: beacon.Major,
		BeaconMinor: beacon.Minor,
		Timestamp:   timestamp,
	}

	body, _ := json.Marshal(payload)

	_, err = c.do(ctx, http.MethodPost, "/api/locations/report", body)

	return err
}

func (c *presenceClient) GetBeacons(ctx context.Context) ([]types.Beacon, error) {
	var err error
	ctx, span := tracer.Start(ctx, "get-beacons")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	result, err := c.do(ctx, http.MethodGet, "/api/external/beacons", nil)
	if err != nil {
		return nil, err
	}

	beacons := []types.Beacon{}
	err = json.Unmarshal(result.Data, &beacons)
	if err != nil {
		err = fmt.Errorf("failed to unmarshal beacons: %w", err)
		return nil, err
	}

	return beacons, nil
}

func (c *presenceClient) do(ctx context.Context, method, path string, body []byte) (envelope, error) {
	log := logging.GetFromContext(ctx)

	httpClient := http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, bytes.NewReader(body))
	if err != nil {
		return envelope{}, fmt.Errorf("failed to create http request: %w", err)
	}

	if body != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, fmt.Errorf("failed to read response body: %w", err)
	}

	result := envelope{}
	err = json.Unmarshal(respBody, &result)
	if err != nil {
		return envelope{}, fmt.Errorf("failed to unmarshal response body: %w", err)
	}

	if !result.Success {
		log.Error().Msgf("%s failed with status code %d", path, result.Code)
		return result, fmt.Errorf("request failed: %s", result.Message)
	}

	return result, nil
}
