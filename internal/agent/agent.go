package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skystation-io/skystation/internal/agent/command"
	"github.com/skystation-io/skystation/internal/agent/hal"
	"github.com/skystation-io/skystation/internal/agent/server"
	"github.com/skystation-io/skystation/internal/agent/storage"
	"github.com/skystation-io/skystation/internal/agent/telemetry"
	"github.com/skystation-io/skystation/internal/agent/updater"
	"github.com/skystation-io/skystation/internal/pkg/metrics"
	"github.com/skystation-io/skystation/pkg/log"
	"github.com/skystation-io/skystation/pkg/mqtt"
	"github.com/skystation-io/skystation/pkg/mqtt/topic"
	"github.com/skystation-io/skystation/pkg/version"
)

const (
	// commandQueueSize bounds the inbound command buffer. The worker drains
	// it serially; if the control side outruns it this far, newer commands
	// are dropped with a warning rather than stalling the broker reader.
	commandQueueSize = 64

	presenceOnline  = "online"
	presenceOffline = "offline"

	// StatusOK is the ack status for a successfully executed command.
	StatusOK = "ok"
)

// Failure reasons the agent reports itself, on top of the update pipeline's.
const (
	ReasonPathInvalid  = "PathInvalid"
	ReasonUnrecognized = "UnrecognizedCommand"
	ReasonHardware     = "HardwareError"
)

// Ack is the acknowledgment published after every processed command.
type Ack struct {
	Kind     string `json:"kind"`
	Path     string `json:"path,omitempty"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts,omitempty"`
}

// startupStatus is published once on the status feed when the agent comes up.
type startupStatus struct {
	Event            string   `json:"event"`
	DeviceID         string   `json:"device_id"`
	Version          string   `json:"version"`
	RecoveredStaging []string `json:"recovered_staging,omitempty"`
}

// Agent subscribes to the device's command feed and executes commands one at
// a time, in arrival order. The broker reader only enqueues; all command side
// effects happen on the single worker goroutine, so an update is never
// interleaved with another command.
type Agent struct {
	deviceID string
	client   mqtt.Client
	topics   *topic.Builder
	upd      *updater.Updater
	store    *storage.Writer
	hw       hal.HAL
	httpSrv  *server.Server
	sensors  *telemetry.Loop

	commands chan string
	ready    atomic.Bool
	logger   log.Logger
}

// Run connects, recovers any interrupted update, subscribes and serves until
// ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	removed, err := a.store.RecoverIncomplete()
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		metrics.StagingRecovered.Add(float64(len(removed)))
		a.logger.Info("Removed interrupted staging files", "paths", removed)
	}

	if err := a.client.Start(ctx); err != nil {
		return err
	}
	if err := a.client.AwaitConnection(ctx); err != nil {
		return err
	}
	metrics.BrokerConnected.Set(1)

	if err := a.client.Subscribe(ctx, a.topics.Command(a.deviceID), 1, a.onCommand); err != nil {
		return err
	}

	if err := a.client.Publish(ctx, a.topics.Online(a.deviceID), 1, true, []byte(presenceOnline)); err != nil {
		a.logger.Error(err, "Failed to publish presence")
	}
	a.publishStartup(ctx, removed)
	a.ready.Store(true)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.runWorker(ctx) })
	g.Go(func() error { return a.httpSrv.Run(ctx) })
	if a.sensors != nil {
		g.Go(func() error { return a.sensors.Run(ctx) })
	}
	err = g.Wait()

	a.shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// shutdown flips the retained presence flag before disconnecting so the
// control side sees a clean offline instead of waiting for the Will.
func (a *Agent) shutdown() {
	a.ready.Store(false)
	metrics.BrokerConnected.Set(0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.client.Publish(ctx, a.topics.Online(a.deviceID), 1, true, []byte(presenceOffline)); err != nil {
		a.logger.Error(err, "Failed to publish offline presence")
	}
	a.client.Disconnect(ctx)
}

// onCommand runs on the broker reader loop. It must not block, so it only
// hands the raw message to the worker.
func (a *Agent) onCommand(ctx context.Context, mqttTopic string, payload []byte) {
	select {
	case a.commands <- string(payload):
	default:
		a.logger.Warn("Command queue full, dropping message", "payload", string(payload))
		metrics.CommandsTotal.WithLabelValues("dropped", "error").Inc()
	}
}

func (a *Agent) runWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw := <-a.commands:
			a.handle(ctx, raw)
		}
	}
}

// handle executes one command and publishes exactly one ack for it.
func (a *Agent) handle(ctx context.Context, raw string) {
	cmd := command.Parse(raw)
	a.logger.Info("Processing command", "kind", cmd.Kind, "raw", raw)

	switch cmd.Kind {
	case command.KindUpdate:
		out := a.upd.Apply(ctx, cmd.Path)
		if out.Err != nil {
			a.ack(ctx, Ack{Kind: "update", Path: cmd.Path, Status: statusError(updater.ReasonForError(out.Err)), Attempts: out.Attempts})
			metrics.CommandsTotal.WithLabelValues("update", "error").Inc()
			return
		}
		a.ack(ctx, Ack{Kind: "update", Path: cmd.Path, Status: StatusOK, Attempts: out.Attempts})
		metrics.CommandsTotal.WithLabelValues("update", "ok").Inc()

	case command.KindInvalidPath:
		// Rejected before the fetcher ever sees it.
		a.logger.Warn("Rejected update path", "path", cmd.Path, "err", cmd.PathErr)
		a.ack(ctx, Ack{Kind: "update", Path: cmd.Path, Status: statusError(ReasonPathInvalid)})
		metrics.CommandsTotal.WithLabelValues("update", "error").Inc()

	case command.KindReboot:
		// The ack is awaited at QoS 1 before the reset so the control side
		// learns the command was accepted even though the device goes away.
		a.ack(ctx, Ack{Kind: "reboot", Status: StatusOK})
		metrics.CommandsTotal.WithLabelValues("reboot", "ok").Inc()
		if err := a.hw.Reboot(); err != nil {
			a.logger.Error(err, "Reboot failed")
		}

	case command.KindToggleLED:
		if err := a.hw.ToggleLED(); err != nil {
			a.logger.Error(err, "LED toggle failed")
			a.ack(ctx, Ack{Kind: "toggleled", Status: statusError(ReasonHardware)})
			metrics.CommandsTotal.WithLabelValues("toggleled", "error").Inc()
			return
		}
		a.ack(ctx, Ack{Kind: "toggleled", Status: StatusOK})
		metrics.CommandsTotal.WithLabelValues("toggleled", "ok").Inc()

	default:
		a.ack(ctx, Ack{Kind: "unknown", Status: statusError(ReasonUnrecognized)})
		metrics.CommandsTotal.WithLabelValues("unknown", "error").Inc()
	}
}

func (a *Agent) ack(ctx context.Context, ack Ack) {
	payload, err := json.Marshal(ack)
	if err != nil {
		a.logger.Error(err, "Failed to marshal ack")
		return
	}
	if err := a.client.Publish(ctx, a.topics.CommandAck(a.deviceID), 1, false, payload); err != nil {
		a.logger.Error(err, "Failed to publish ack", "kind", ack.Kind, "status", ack.Status)
	}
}

func (a *Agent) publishStartup(ctx context.Context, recovered []string) {
	payload, err := json.Marshal(startupStatus{
		Event:            "started",
		DeviceID:         a.deviceID,
		Version:          version.Get(),
		RecoveredStaging: recovered,
	})
	if err != nil {
		a.logger.Error(err, "Failed to marshal startup status")
		return
	}
	if err := a.client.Publish(ctx, a.topics.Status(a.deviceID), 1, false, payload); err != nil {
		a.logger.Error(err, "Failed to publish startup status")
	}
}

func (a *Agent) publishTelemetry(ctx context.Context, payload []byte) error {
	return a.client.Publish(ctx, a.topics.Telemetry(a.deviceID), 0, false, payload)
}

func statusError(reason string) string {
	return "error:" + reason
}
