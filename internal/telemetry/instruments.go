// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// =============================================================================
// INSTRUMENTS
// =============================================================================

// Instruments exports batcher activity. A nil *Instruments is valid and
// records nothing.
type Instruments struct {
	logged        metric.Int64Counter
	flushFailures metric.Int64Counter
	flushDuration metric.Float64Histogram

	records *prometheus.CounterVec
	cost    *prometheus.CounterVec
	latency *prometheus.HistogramVec
	pending prometheus.Gauge
}

// NewInstruments creates OpenTelemetry instruments on meter and registers
// Prometheus collectors with reg. Either may be nil.
func NewInstruments(meter metric.Meter, reg prometheus.Registerer) (*Instruments, error) {
	inst := &Instruments{}

	if meter != nil {
		var err error
		inst.logged, err = meter.Int64Counter("telemetry.records.logged",
			metric.WithDescription("Telemetry records buffered by the batcher"))
		if err != nil {
			return nil, fmt.Errorf("failed to create records counter: %w", err)
		}
		inst.flushFailures, err = meter.Int64Counter("telemetry.flush.failures",
			metric.WithDescription("Failed telemetry flushes"))
		if err != nil {
			return nil, fmt.Errorf("failed to create flush failure counter: %w", err)
		}
		inst.flushDuration, err = meter.Float64Histogram("telemetry.flush.duration",
			metric.WithDescription("Telemetry flush duration"),
			metric.WithUnit("ms"))
		if err != nil {
			return nil, fmt.Errorf("failed to create flush duration histogram: %w", err)
		}
	}

	if reg != nil {
		inst.records = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cortexpipe_operations_total",
			Help: "Operations logged, by operation type and status",
		}, []string{"operation", "status"})
		inst.cost = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cortexpipe_cost_usd_total",
			Help: "Estimated spend in USD, by operation type and model",
		}, []string{"operation", "model"})
		inst.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cortexpipe_operation_latency_ms",
			Help:    "Operation latency in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}, []string{"operation"})
		inst.pending = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cortexpipe_telemetry_pending",
			Help: "Telemetry records waiting to be flushed",
		})

		for _, c := range []prometheus.Collector{inst.records, inst.cost, inst.latency, inst.pending} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("failed to register collector: %w", err)
			}
		}
	}

	return inst, nil
}

func (i *Instruments) recordLogged(rec Record, pending int) {
	if i == nil {
		return
	}

	status := "success"
	if !rec.Success {
		status = "error"
	}

	if i.logged != nil {
		i.logged.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("operation", rec.OperationType),
			attribute.String("status", status),
		))
	}
	if i.records != nil {
		i.records.WithLabelValues(rec.OperationType, status).Inc()
		i.latency.WithLabelValues(rec.OperationType).Observe(rec.LatencyMs)
		if rec.CostUSD > 0 {
			i.cost.WithLabelValues(rec.OperationType, rec.ModelName).Add(rec.CostUSD)
		}
		i.pending.Set(float64(pending))
	}
}

func (i *Instruments) flushFailed(ctx context.Context, elapsed time.Duration, pending int) {
	if i == nil {
		return
	}
	if i.flushFailures != nil {
		i.flushFailures.Add(ctx, 1)
		i.flushDuration.Record(ctx, msec(elapsed), metric.WithAttributes(attribute.Bool("success", false)))
	}
	if i.pending != nil {
		i.pending.Set(float64(pending))
	}
}

func (i *Instruments) flushSucceeded(ctx context.Context, elapsed time.Duration, pending int) {
	if i == nil {
		return
	}
	if i.flushDuration != nil {
		i.flushDuration.Record(ctx, msec(elapsed), metric.WithAttributes(attribute.Bool("success", true)))
	}
	if i.pending != nil {
		i.pending.Set(float64(pending))
	}
}

func msec(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
