package telemetry

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/tvecera/zivyobraz-kindle-proxy/internal/logging"
	"github.com/tvecera/zivyobraz-kindle-proxy/internal/upstream"
	"go.uber.org/zap"
)

// TimestampLayout formats last_activity as DD-MM-YYYY HH:MM:SS
const TimestampLayout = "02-01-2006 15:04:05"

// Sender delivers a telemetry report upstream
type Sender interface {
	SendTelemetry(ctx context.Context, t upstream.Telemetry) (int, error)
}

// Readings holds the values a device reports in its query string
type Readings struct {
	Battery     int
	Voltage     float64
	Temperature int
}

// ParseReadings extracts device readings from the inbound query.
// voltage is always read and scaled from millivolts to volts; battery and
// temperature are only read when withDeviceInfo is set. Missing or
// non-integer values count as 0.
func ParseReadings(query url.Values, withDeviceInfo bool) Readings {
	r := Readings{
		Voltage: float64(queryInt(query, "voltage")) / 1000,
	}
	if withDeviceInfo {
		r.Battery = queryInt(query, "battery")
		r.Temperature = queryInt(query, "temperature")
	}
	return r
}

func queryInt(query url.Values, key string) int {
	v, err := strconv.Atoi(query.Get(key))
	if err != nil {
		return 0
	}
	return v
}

// Reporter sends device telemetry to the import API.
// Failures are logged and returned, never retried.
type Reporter struct {
	sender   Sender
	location *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

// NewReporter creates a reporter stamping reports in the given timezone
func NewReporter(sender Sender, location *time.Location, logger *zap.Logger) *Reporter {
	if location == nil {
		location = time.UTC
	}
	return &Reporter{
		sender:   sender,
		location: location,
		now:      time.Now,
		logger:   logger,
	}
}

// Report sends one device's readings stamped with the current time
func (r *Reporter) Report(ctx context.Context, deviceName string, readings Readings) error {
	t := upstream.Telemetry{
		DeviceName:   deviceName,
		Battery:      readings.Battery,
		Voltage:      readings.Voltage,
		Temperature:  readings.Temperature,
		LastActivity: r.now().In(r.location).Format(TimestampLayout),
	}

	fields := []zap.Field{
		zap.String("device", deviceName),
		zap.Int("battery", t.Battery),
		zap.Float64("voltage", t.Voltage),
		zap.Int("temperature", t.Temperature),
		zap.String("last_activity", t.LastActivity),
	}

	logger := logging.WithContext(ctx, r.logger)

	status, err := r.sender.SendTelemetry(ctx, t)
	if err != nil {
		var statusErr *upstream.StatusError
		if errors.As(err, &statusErr) {
			logger.Warn("Device info import rejected",
				append(fields, zap.Int("status", statusErr.StatusCode))...)
		} else {
			logger.Error("Device info import failed", append(fields, zap.Error(err))...)
		}
		return err
	}

	logger.Info("Device info imported", append(fields, zap.Int("status", status))...)
	return nil
}
