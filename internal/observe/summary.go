package observe

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/hammamikhairi/tabkha/internal/logger"
)

// Recorder is an in-process meter provider whose totals are written to the
// log when the client exits. The client has no metrics endpoint to scrape.
type Recorder struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader
	metrics  *Metrics
}

// NewRecorder creates a provider with a manual reader and the client
// instruments registered on it.
func NewRecorder() (*Recorder, error) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		return nil, fmt.Errorf("observe: creating metrics: %w", err)
	}
	return &Recorder{provider: mp, reader: reader, metrics: m}, nil
}

// Metrics returns the instruments backed by this recorder.
func (r *Recorder) Metrics() *Metrics { return r.metrics }

// Summary collects the current values as sorted "name{attrs}=value" lines.
// Histograms report their count and sum.
func (r *Recorder) Summary(ctx context.Context) ([]string, error) {
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("observe: collect: %w", err)
	}

	var lines []string
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			switch data := met.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					lines = append(lines, fmt.Sprintf("%s%s=%d", met.Name, attrs(dp.Attributes.ToSlice()), dp.Value))
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					lines = append(lines, fmt.Sprintf("%s%s count=%d sum=%.3fs", met.Name, attrs(dp.Attributes.ToSlice()), dp.Count, dp.Sum))
				}
			}
		}
	}
	sort.Strings(lines)
	return lines, nil
}

// Shutdown logs the final summary and releases the provider.
func (r *Recorder) Shutdown(ctx context.Context, log *logger.Logger) error {
	lines, err := r.Summary(ctx)
	if err != nil {
		log.Warn("metrics summary: %v", err)
	}
	for _, l := range lines {
		log.Info("metric %s", l)
	}
	return r.provider.Shutdown(ctx)
}

func attrs(kvs []attribute.KeyValue) string {
	if len(kvs) == 0 {
		return ""
	}
	parts := make([]string, len(kvs))
	for i, kv := range kvs {
		parts[i] = string(kv.Key) + "=" + kv.Value.Emit()
	}
	return "{" + strings.Join(parts, ",") + "}"
}
