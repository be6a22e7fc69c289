package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// InitSlog installs the default logger used by SlogAPI, verbose enables debug
// output.
func InitSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

var meter = otel.Meter("blogtoggle")
var countGauge = int64Gauge("report_count")

// instruments are created once at init, failures go to the otel error handler
// and leave the (no-op) instrument the meter still returns.
func int64Gauge(name string) metric.Int64Gauge {
	gauge, err := meter.Int64Gauge(name)
	if err != nil {
		otel.Handle(err)
	}
	return gauge
}

func float64Gauge(name string) metric.Float64Gauge {
	gauge, err := meter.Float64Gauge(name)
	if err != nil {
		otel.Handle(err)
	}
	return gauge
}

// SlogAPI implements API on top of log/slog, counts are also recorded as an
// otel gauge so they reach the metrics exporter when one is configured.
type SlogAPI struct{}

func (SlogAPI) formatParams(out *[]any, params []any) {
	for i, p := range params {
		*out = append(
			*out,
			fmt.Sprintf("params.%d", i),
			p,
		)
	}
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	pairs := []any{"id", id}
	s.formatParams(&pairs, params)
	slog.Error("broken component", pairs...)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	pairs := []any{"id", id}
	s.formatParams(&pairs, params)
	slog.Warn("warning", pairs...)
}

func (s SlogAPI) ReportDebug(message string, params ...any) {
	pairs := []any{}
	s.formatParams(&pairs, params)
	slog.Debug(message, pairs...)
}

func (s SlogAPI) ReportCount(id string, count int64) {
	slog.Info("count", "id", id, "n", count)
	countGauge.Record(
		context.Background(), count,
		metric.WithAttributes(idAttr.String(id)),
	)
}
