package observe

import (
	"context"

	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMeterProvider wires up an OpenTelemetry [sdkmetric.MeterProvider] backed
// by a Prometheus exporter, and registers it as the global meter provider so
// [DefaultMetrics] picks it up. The exporter registers with the Prometheus
// default registry; this function starts no HTTP server, and no /metrics
// handler is served by the module.
//
// Returns a shutdown function that flushes and closes the exporter. Call it in
// a defer from main().
func InitMeterProvider() (shutdown func() error, err error) {
	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)

	return func() error {
		return mp.Shutdown(context.Background())
	}, nil
}
