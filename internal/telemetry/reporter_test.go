package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/tvecera/zivyobraz-kindle-proxy/internal/upstream"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSender struct {
	status int
	err    error
	got    []upstream.Telemetry
}

func (f *fakeSender) SendTelemetry(ctx context.Context, t upstream.Telemetry) (int, error) {
	f.got = append(f.got, t)
	return f.status, f.err
}

func TestParseReadings(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		withInfo bool
		want     Readings
	}{
		{"voltage scaled", "voltage=3700", false, Readings{Voltage: 3.7}},
		{"absent voltage", "", false, Readings{Voltage: 0}},
		{"device info ignored when disabled", "voltage=4100&battery=80&temperature=22", false, Readings{Voltage: 4.1}},
		{"device info parsed when enabled", "voltage=4100&battery=80&temperature=22", true, Readings{Battery: 80, Voltage: 4.1, Temperature: 22}},
		{"missing device info defaults", "voltage=3900", true, Readings{Voltage: 3.9}},
		{"non-integer values default", "voltage=abc&battery=1.5&temperature=", true, Readings{}},
		{"negative temperature", "temperature=-5", true, Readings{Temperature: -5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("bad query: %v", err)
			}
			if got := ParseReadings(q, tt.withInfo); got != tt.want {
				t.Errorf("ParseReadings(%q) = %+v, want %+v", tt.query, got, tt.want)
			}
		})
	}
}

func newTestReporter(sender Sender) (*Reporter, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	prague, _ := time.LoadLocation("Europe/Prague")
	r := NewReporter(sender, prague, zap.New(core))
	r.now = func() time.Time { return time.Date(2026, 1, 5, 8, 3, 9, 0, time.UTC) }
	return r, logs
}

func TestReport_Success(t *testing.T) {
	sender := &fakeSender{status: 200}
	r, logs := newTestReporter(sender)

	err := r.Report(context.Background(), "kindle", Readings{Battery: 80, Voltage: 3.7, Temperature: 21})
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	if len(sender.got) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sender.got))
	}
	got := sender.got[0]
	if got.DeviceName != "kindle" || got.Battery != 80 || got.Voltage != 3.7 || got.Temperature != 21 {
		t.Errorf("unexpected telemetry: %+v", got)
	}
	// 08:03:09 UTC is 09:03:09 CET
	if got.LastActivity != "05-01-2026 09:03:09" {
		t.Errorf("LastActivity = %q, want 05-01-2026 09:03:09", got.LastActivity)
	}

	entries := logs.FilterMessage("Device info imported").All()
	if len(entries) != 1 {
		t.Fatalf("expected success log, got %v", logs.All())
	}
	if entries[0].ContextMap()["status"] != int64(200) {
		t.Errorf("logged status = %v, want 200", entries[0].ContextMap()["status"])
	}
}

func TestReport_RejectedIsObservable(t *testing.T) {
	sender := &fakeSender{status: 403, err: &upstream.StatusError{Op: "send telemetry", StatusCode: 403}}
	r, logs := newTestReporter(sender)

	err := r.Report(context.Background(), "kindle", Readings{})
	if err == nil {
		t.Fatal("expected error")
	}

	entries := logs.FilterMessage("Device info import rejected").All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warn entry, got %v", logs.All())
	}
	if entries[0].ContextMap()["status"] != int64(403) {
		t.Errorf("logged status = %v, want 403", entries[0].ContextMap()["status"])
	}
}

func TestReport_TransportFailureIsObservable(t *testing.T) {
	sender := &fakeSender{err: errors.New("connection refused")}
	r, logs := newTestReporter(sender)

	if err := r.Report(context.Background(), "kindle", Readings{}); err == nil {
		t.Fatal("expected error")
	}

	entries := logs.FilterMessage("Device info import failed").All()
	if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected one error entry, got %v", logs.All())
	}
}

func TestReport_TransportFailureLogHidesImportKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := upstream.NewClient("", server.URL,
		upstream.WithEnvLookup(func(string) string { return "SECRET-KEY" }))
	r, logs := newTestReporter(client)

	if err := r.Report(context.Background(), "kindle", Readings{}); err == nil {
		t.Fatal("expected error")
	}

	entries := logs.FilterMessage("Device info import failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one error entry, got %v", logs.All())
	}
	for key, value := range entries[0].ContextMap() {
		if strings.Contains(fmt.Sprint(value), "SECRET-KEY") {
			t.Errorf("field %q leaks import key: %v", key, value)
		}
	}
}

func TestNewReporter_DefaultsToUTC(t *testing.T) {
	r := NewReporter(&fakeSender{}, nil, zap.NewNop())
	if r.location != time.UTC {
		t.Errorf("location = %v, want UTC", r.location)
	}
}
