package telemetry

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/skystation-io/skystation/internal/pkg/metrics"
	"github.com/skystation-io/skystation/pkg/log"
)

// Reading is one telemetry sample published to the telemetry feed.
type Reading struct {
	TemperatureC float64   `json:"temperature_c"`
	HumidityPct  float64   `json:"humidity_pct"`
	PressurePa   float64   `json:"pressure_pa"`
	TakenAt      time.Time `json:"taken_at"`
}

// Sampler acquires a reading from the device's sensors. The sensor drivers
// themselves are external collaborators behind this interface.
type Sampler interface {
	Sample(ctx context.Context) (Reading, error)
}

// PublishFunc delivers a marshaled reading to the telemetry feed.
type PublishFunc func(ctx context.Context, payload []byte) error

// Loop periodically samples and publishes readings. Sampling or publish
// failures are logged and the tick skipped; telemetry must never take the
// agent down.
type Loop struct {
	sampler  Sampler
	publish  PublishFunc
	interval time.Duration
	logger   log.Logger
}

func NewLoop(sampler Sampler, publish PublishFunc, interval time.Duration) *Loop {
	return &Loop{
		sampler:  sampler,
		publish:  publish,
		interval: interval,
		logger:   log.WithName("telemetry"),
	}
}

// Run blocks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	reading, err := l.sampler.Sample(ctx)
	if err != nil {
		l.logger.Error(err, "Failed to sample sensors, skipping tick")
		return
	}

	payload, err := json.Marshal(reading)
	if err != nil {
		l.logger.Error(err, "Failed to marshal reading")
		return
	}

	if err := l.publish(ctx, payload); err != nil {
		l.logger.Error(err, "Failed to publish reading")
		return
	}

	metrics.TelemetryPublished.Inc()
	l.logger.Debug("Published telemetry reading", "temperature", reading.TemperatureC)
}

// SimulatedSampler produces plausible indoor readings for hosts without
// real sensors attached.
type SimulatedSampler struct{}

func (SimulatedSampler) Sample(ctx context.Context) (Reading, error) {
	return Reading{
		TemperatureC: 21 + rand.Float64()*4,
		HumidityPct:  40 + rand.Float64()*20,
		PressurePa:   100500 + rand.Float64()*1500,
		TakenAt:      time.Now().UTC(),
	}, nil
}
