// Package telemetry records fan speed history.
package telemetry

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	log "github.com/sirupsen/logrus"

	"fanctl-backend/config"
	"fanctl-backend/internal/model"
)

const (
	measurement    = "fan_speed"
	connectTimeout = 10 * time.Second
)

// Recorder receives every committed fan speed change.
type Recorder interface {
	RecordSpeed(fan model.Fan)
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordSpeed(model.Fan) {}
func (Nop) Close() error         { return nil }

// New returns an InfluxDB recorder when telemetry is enabled, otherwise Nop.
func New(cfg config.TelemetryConfig) (Recorder, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	return Connect(cfg)
}

// InfluxRecorder writes fan speed points through the non-blocking write API.
type InfluxRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// Connect creates the client, checks the server answers and starts the
// batched writer.
func Connect(cfg config.TelemetryConfig) (*InfluxRecorder, error) {
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(cfg.BatchSize)).
			SetFlushInterval(uint(cfg.FlushIntervalSeconds)*1000),
	)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb ping failed: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("influxdb server not healthy")
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			log.WithError(err).Warn("Telemetry write failed")
		}
	}()

	log.WithFields(log.Fields{"url": cfg.URL, "bucket": cfg.Bucket}).Info("Telemetry enabled")
	return &InfluxRecorder{client: client, writeAPI: writeAPI}, nil
}

// RecordSpeed queues a point for the fan's current speed.
func (r *InfluxRecorder) RecordSpeed(fan model.Fan) {
	r.writeAPI.WritePoint(SpeedPoint(fan, fan.UpdatedAt))
}

// Close flushes pending points and closes the client.
func (r *InfluxRecorder) Close() error {
	r.writeAPI.Flush()
	r.client.Close()
	return nil
}

// SpeedPoint builds the fan_speed point for a fan.
func SpeedPoint(fan model.Fan, ts time.Time) *write.Point {
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(
		measurement,
		map[string]string{
			"floor_id": fan.FloorID,
			"fan_id":   fan.ID,
			"model_id": fan.FanModelID,
		},
		map[string]interface{}{
			"rpm": fan.RPM,
			"on":  fan.Status == model.FanOn,
		},
		ts,
	)
}
