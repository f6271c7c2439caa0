package agent

import (
	"fmt"

	"github.com/skystation-io/skystation/internal/agent/fetch"
	"github.com/skystation-io/skystation/internal/agent/hal"
	"github.com/skystation-io/skystation/internal/agent/server"
	"github.com/skystation-io/skystation/internal/agent/storage"
	"github.com/skystation-io/skystation/internal/agent/telemetry"
	"github.com/skystation-io/skystation/internal/agent/updater"
	"github.com/skystation-io/skystation/pkg/log"
	"github.com/skystation-io/skystation/pkg/mqtt"
	"github.com/skystation-io/skystation/pkg/mqtt/topic"
	"github.com/skystation-io/skystation/pkg/options"
)

// Config carries the validated options the agent is assembled from.
type Config struct {
	Mqtt      *options.MqttOptions
	Source    *options.SourceOptions
	S3        *options.S3Options
	Update    *options.UpdateOptions
	Http      *options.HttpOptions
	Telemetry *options.TelemetryOptions
}

// New wires the agent together: hardware identity, broker client with a
// Last Will on the presence topic, fetcher, writable root and updater.
func (c *Config) New() (*Agent, error) {
	hw := hal.NewHAL()
	deviceID := c.Mqtt.ClientID
	if deviceID == "" {
		deviceID = hw.DeviceID()
	}

	topics := topic.NewBuilder(c.Mqtt.TopicRoot)

	clientCfg := c.Mqtt.ToClientConfig()
	clientCfg.ClientID = deviceID
	clientCfg.WillTopic = topics.Online(deviceID)
	clientCfg.WillPayload = []byte(presenceOffline)
	clientCfg.WillQoS = 1
	clientCfg.WillRetain = true

	client, err := mqtt.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create mqtt client: %w", err)
	}

	fetcher, err := fetch.New(c.Source, c.S3)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	store, err := storage.NewWriter(c.Update.Root)
	if err != nil {
		return nil, fmt.Errorf("open writable root: %w", err)
	}

	a := &Agent{
		deviceID: deviceID,
		client:   client,
		topics:   topics,
		upd:      updater.New(fetcher, store, c.Update),
		store:    store,
		hw:       hw,
		commands: make(chan string, commandQueueSize),
		logger:   log.WithName("agent"),
	}

	a.httpSrv = server.New(c.Http.Addr, a.ready.Load)
	if c.Telemetry.Enabled {
		a.sensors = telemetry.NewLoop(telemetry.SimulatedSampler{}, a.publishTelemetry, c.Telemetry.Interval)
	}
	return a, nil
}
