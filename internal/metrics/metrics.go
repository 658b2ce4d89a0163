/*
 * Copyright (c) 2024. Anton Starikov -- All Rights Reserved
 *
 * This file is part of MZTRVC project.
 *
 * MZTRVC is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as the Free Software Foundation,
 * either version 3 of the License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/antst/mztrvc/internal/engine"
)

const namespace = "mztrvc"

// Metrics instruments the decision loop. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	passes           prometheus.Counter
	rejected         *prometheus.CounterVec
	boilerOn         prometheus.Gauge
	flowTemperature  prometheus.Gauge
	drivingDemand    prometheus.Gauge
	lowAggregate     prometheus.Gauge
	preheatActive    prometheus.Gauge
	preheatEstimate  prometheus.Gauge
	zoneDemand       *prometheus.GaugeVec
	zoneError        *prometheus.GaugeVec
	zoneOffset       *prometheus.GaugeVec
	dischargeOn      *prometheus.GaugeVec
	publishErrors    *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	passDurationSecs prometheus.Histogram
}

// New registers the collectors on a private registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "decision_passes_total",
			Help: "Total decision passes run.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rejected_events_total",
			Help: "Zone events rejected before a pass, by reason.",
		}, []string{"reason"}),
		boilerOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "boiler_on",
			Help: "Last commanded boiler state (1 on, 0 off).",
		}),
		flowTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "flow_temperature_celsius",
			Help: "Last commanded flow temperature.",
		}),
		drivingDemand: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "driving_demand_metric",
			Help: "Demand metric that drove the last decision.",
		}),
		lowAggregate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "low_priority_aggregate_percent",
			Help: "Sum of low-priority TRV openings below target.",
		}),
		preheatActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "preheat_active",
			Help: "Pre-heating active (1) or not (0).",
		}),
		preheatEstimate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "preheat_thermal_load_estimate",
			Help: "Current pre-heat thermal load estimate.",
		}),
		zoneDemand: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "zone_demand_metric",
			Help: "Per-zone demand metric.",
		}, []string{"zone"}),
		zoneError: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "zone_temperature_error_celsius",
			Help: "Per-zone temperature error below target.",
		}, []string{"zone"}),
		zoneOffset: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "zone_temperature_offset_celsius",
			Help: "Per-zone TRV calibration offset.",
		}, []string{"zone"}),
		dischargeOn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "discharge_on",
			Help: "Discharge output per zone (1 on, 0 off).",
		}, []string{"zone"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "publish_errors_total",
			Help: "MQTT publish failures by command kind.",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		passDurationSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "decision_pass_duration_seconds",
			Help:    "Histogram of decision pass durations.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		}),
	}

	reg.MustRegister(
		m.passes,
		m.rejected,
		m.boilerOn,
		m.flowTemperature,
		m.drivingDemand,
		m.lowAggregate,
		m.preheatActive,
		m.preheatEstimate,
		m.zoneDemand,
		m.zoneError,
		m.zoneOffset,
		m.dischargeOn,
		m.publishErrors,
		m.httpRequests,
		m.httpDuration,
		m.passDurationSecs,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObservePass records the outcome of one decision pass.
func (m *Metrics) ObservePass(state engine.ControllerState, took time.Duration) {
	if m == nil {
		return
	}
	m.passes.Inc()
	m.passDurationSecs.Observe(took.Seconds())

	if state.Boiler != nil {
		m.boilerOn.Set(boolGauge(state.Boiler.On))
		m.flowTemperature.Set(state.Boiler.FlowTemperature)
	}
	m.drivingDemand.Set(state.Decision.DrivingDemandMetric)
	m.lowAggregate.Set(state.Decision.LowPriorityAggregate)
	m.preheatActive.Set(boolGauge(state.PreHeat.Active))
	m.preheatEstimate.Set(state.PreHeat.ThermalLoadEstimate)

	for _, z := range state.Zones {
		m.zoneDemand.WithLabelValues(z.ID).Set(z.DemandMetric)
		m.zoneError.WithLabelValues(z.ID).Set(z.TemperatureError)
		m.zoneOffset.WithLabelValues(z.ID).Set(z.TemperatureOffset)
	}
	for _, d := range state.Discharge {
		m.dischargeOn.WithLabelValues(d.ZoneID).Set(boolGauge(d.DischargeOn()))
	}
}

func (m *Metrics) RejectedEvent(err error) {
	if m == nil {
		return
	}
	reason := "other"
	switch {
	case engine.IsValidation(err):
		reason = "validation"
	case engine.IsConfiguration(err):
		reason = "configuration"
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) PublishError(kind string) {
	if m == nil {
		return
	}
	m.publishErrors.WithLabelValues(kind).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
