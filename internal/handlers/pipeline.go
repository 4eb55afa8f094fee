package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tvecera/zivyobraz-kindle-proxy/internal/logging"
	"github.com/tvecera/zivyobraz-kindle-proxy/internal/telemetry"
	"github.com/tvecera/zivyobraz-kindle-proxy/internal/upstream"
	"github.com/tvecera/zivyobraz-kindle-proxy/pkg/models"
	"go.uber.org/zap"
)

// ImageFetcher downloads the raw device bitmap from the render API
type ImageFetcher interface {
	FetchImage(ctx context.Context, req upstream.ImageRequest) ([]byte, error)
}

// TelemetryReporter forwards device readings to the import API
type TelemetryReporter interface {
	Report(ctx context.Context, deviceName string, readings telemetry.Readings) error
}

// ImageTranscoder re-encodes a bitmap into a device's color mode and format
type ImageTranscoder interface {
	Transcode(raw []byte, mode models.ColorMode, format models.OutputFormat) ([]byte, error)
}

// Result is an encoded image ready to stream back to the device
type Result struct {
	Body        []byte
	ContentType string
}

// PipelineError carries the message and HTTP status returned to the device
type PipelineError struct {
	Message string
	Status  int
	Err     error
}

func (e *PipelineError) Error() string {
	return e.Message
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Pipeline handles one device image request end to end
type Pipeline struct {
	fetcher    ImageFetcher
	reporter   TelemetryReporter
	transcoder ImageTranscoder
	logger     *zap.Logger
}

// NewPipeline creates a new device request pipeline
func NewPipeline(fetcher ImageFetcher, reporter TelemetryReporter, transcoder ImageTranscoder, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		fetcher:    fetcher,
		reporter:   reporter,
		transcoder: transcoder,
		logger:     logger,
	}
}

// Process serves one inbound request for device. Errors are always *PipelineError.
func (p *Pipeline) Process(ctx context.Context, device models.Device, query url.Values) (*Result, error) {
	logger := logging.WithContext(ctx, p.logger).With(zap.String("device", device.Name))

	readings := telemetry.ParseReadings(query, device.ImportDeviceInfo)

	// Import outcome is logged by the reporter and never affects the image response
	if device.ImportDeviceInfo {
		if err := p.reporter.Report(ctx, device.Name, readings); err != nil {
			logger.Debug("Continuing after device info import failure", zap.Error(err))
		}
	}

	logger.Info("Serve device image from the ZivyObraz API",
		zap.Float64("voltage", readings.Voltage))

	raw, err := p.fetcher.FetchImage(ctx, upstream.ImageRequest{
		MAC:       device.MAC,
		Width:     device.Width,
		Height:    device.Height,
		ColorType: string(device.ColorType),
		Voltage:   readings.Voltage,
	})
	if err != nil {
		var statusErr *upstream.StatusError
		if errors.As(err, &statusErr) {
			msg := fmt.Sprintf("Error downloading BMP image for %s, HTTP code: %d", device.Name, statusErr.StatusCode)
			logger.Error("Error downloading BMP image", zap.Int("status", statusErr.StatusCode))
			return nil, &PipelineError{Message: msg, Status: http.StatusInternalServerError, Err: err}
		}
		logger.Error("Error downloading BMP image", zap.Error(err))
		return nil, &PipelineError{
			Message: fmt.Sprintf("Error downloading BMP image for %s: %v", device.Name, err),
			Status:  http.StatusInternalServerError,
			Err:     err,
		}
	}

	logger.Info("Successfully downloaded BMP image", zap.Int("size", len(raw)))

	body, err := p.transcoder.Transcode(raw, device.ColorMode, device.OutputFormat)
	if err != nil {
		logger.Error("Error converting image",
			zap.String("color_mode", string(device.ColorMode)),
			zap.String("output_format", string(device.OutputFormat)),
			zap.Error(err))
		return nil, &PipelineError{
			Message: fmt.Sprintf("Error converting image for %s: %v", device.Name, err),
			Status:  http.StatusInternalServerError,
			Err:     err,
		}
	}

	return &Result{
		Body:        body,
		ContentType: device.OutputFormat.MIMEType(),
	}, nil
}
