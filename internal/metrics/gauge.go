package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GaugeFunc reports the current values of a gauge keyed by label value.
type GaugeFunc func(ctx context.Context) (map[string]int64, error)

// RegisterGauge registers an asynchronous gauge named "<namespace>_<name>". fn is called
// on every collection and each returned key becomes one series labelled with label.
// An error from fn drops the series for that collection only.
func RegisterGauge(
	meterProvider metric.MeterProvider,
	namespace, name, description, label string,
	fn GaugeFunc,
) error {
	meter := meterProvider.Meter(namespace)

	_, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_%s", namespace, name),
		metric.WithDescription(description),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			values, err := fn(ctx)
			if err != nil {
				return err
			}
			for key, value := range values {
				observer.Observe(value, metric.WithAttributes(attribute.String(label, key)))
			}
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s gauge: %w", name, err)
	}

	return nil
}
