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

package engine

import (
	"math"
)

const (
	HighPriorityThreshold  = 0.5
	HighPriorityMinOpening = 25.0
	LowPriorityMinOpening  = 100.0
	// Temperature error at which the error factor of the demand metric saturates.
	MaxTemperatureError  = 10.0
	MinTemperatureOffset = -5.0
	MaxTemperatureOffset = 5.0
)

// ZoneConfig is the immutable identity of a zone.
type ZoneConfig struct {
	ID                string
	Priority          float64
	FloorArea         float64
	IsDischargeZone   bool
	UseExternalSensor bool
}

// Reading is a partial zone update, nil fields keep their previous value.
type Reading struct {
	CurrentTemperature        *float64 `json:"current_temperature,omitempty"`
	TargetTemperature         *float64 `json:"target_temperature,omitempty"`
	TRVOpeningPercent         *float64 `json:"trv_opening_percent,omitempty"`
	ExternalSensorTemperature *float64 `json:"external_sensor_temperature,omitempty"`
}

func (r Reading) IsEmpty() bool {
	return r.CurrentTemperature == nil && r.TargetTemperature == nil &&
		r.TRVOpeningPercent == nil && r.ExternalSensorTemperature == nil
}

// ZoneStateChanged is the input event of a decision pass.
type ZoneStateChanged struct {
	ZoneID string `json:"zone_id"`
	Reading
}

// Zone holds one room's raw readings. Everything derived from them is
// recomputed on read.
type Zone struct {
	cfg      ZoneConfig
	current  float64
	target   float64
	opening  float64
	external *float64
	offset   float64
}

func NewZone(cfg ZoneConfig) (*Zone, error) {
	if cfg.ID == "" {
		return nil, &ConfigurationError{ZoneID: cfg.ID, Reason: "empty zone id"}
	}
	if err := checkRange("priority", cfg.Priority, 0, 1); err != nil {
		return nil, err
	}
	if math.IsNaN(cfg.FloorArea) || cfg.FloorArea < 0 {
		return nil, &ValidationError{Field: "floor_area", Value: cfg.FloorArea, Reason: "must not be negative"}
	}
	return &Zone{cfg: cfg}, nil
}

func (z *Zone) ID() string { return z.cfg.ID }

func (z *Zone) Config() ZoneConfig { return z.cfg }

// Update applies a partial reading. Every field is validated before any is
// written, so a rejected update changes nothing.
func (z *Zone) Update(r Reading) error {
	if r.TRVOpeningPercent != nil {
		if err := checkRange("trv_opening_percent", *r.TRVOpeningPercent, 0, 100); err != nil {
			return err
		}
	}
	for name, v := range map[string]*float64{
		"current_temperature":         r.CurrentTemperature,
		"target_temperature":          r.TargetTemperature,
		"external_sensor_temperature": r.ExternalSensorTemperature,
	} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return &ValidationError{Field: name, Value: *v, Reason: "must be a finite number"}
		}
	}

	if r.CurrentTemperature != nil {
		z.current = *r.CurrentTemperature
	}
	if r.TargetTemperature != nil {
		z.target = *r.TargetTemperature
	}
	if r.TRVOpeningPercent != nil {
		z.opening = *r.TRVOpeningPercent
	}
	if r.ExternalSensorTemperature != nil {
		v := *r.ExternalSensorTemperature
		z.external = &v
	}
	return nil
}

// EffectiveTemperature is the room temperature the control laws act on.
func (z *Zone) EffectiveTemperature() float64 {
	if z.cfg.UseExternalSensor && z.external != nil {
		return *z.external
	}
	return z.current
}

func (z *Zone) TemperatureError() float64 {
	return math.Max(0, z.target-z.EffectiveTemperature())
}

func (z *Zone) AtTarget() bool {
	return z.EffectiveTemperature() >= z.target
}

func (z *Zone) DemandMetric() float64 {
	e := clamp(z.TemperatureError()/MaxTemperatureError, 0, 1)
	return clamp(e*z.opening/100, 0, 1)
}

func (z *Zone) IsHighPriority() bool {
	return z.cfg.Priority > HighPriorityThreshold
}

// IsDemandingHeat never holds for a zone at or above its target.
func (z *Zone) IsDemandingHeat() bool {
	if z.TemperatureError() <= 0 {
		return false
	}
	if z.IsHighPriority() {
		return z.opening >= HighPriorityMinOpening
	}
	return z.opening >= LowPriorityMinOpening
}

func (z *Zone) TemperatureOffset() float64 { return z.offset }

func (z *Zone) setTemperatureOffset(v float64) {
	z.offset = clamp(v, MinTemperatureOffset, MaxTemperatureOffset)
}

// ZoneSnapshot is a point-in-time view of a zone, raw and derived fields.
type ZoneSnapshot struct {
	ID                        string   `json:"zone_id"`
	Priority                  float64  `json:"priority"`
	FloorArea                 float64  `json:"floor_area"`
	IsDischargeZone           bool     `json:"is_discharge_zone"`
	CurrentTemperature        float64  `json:"current_temperature"`
	TargetTemperature         float64  `json:"target_temperature"`
	TRVOpeningPercent         float64  `json:"trv_opening_percent"`
	ExternalSensorTemperature *float64 `json:"external_sensor_temperature,omitempty"`
	EffectiveTemperature      float64  `json:"effective_temperature"`
	TemperatureOffset         float64  `json:"temperature_offset"`
	TemperatureError          float64  `json:"temperature_error"`
	DemandMetric              float64  `json:"demand_metric"`
	IsHighPriority            bool     `json:"is_high_priority"`
	IsDemandingHeat           bool     `json:"is_demanding_heat"`
}

func (z *Zone) Snapshot() ZoneSnapshot {
	s := ZoneSnapshot{
		ID:                   z.cfg.ID,
		Priority:             z.cfg.Priority,
		FloorArea:            z.cfg.FloorArea,
		IsDischargeZone:      z.cfg.IsDischargeZone,
		CurrentTemperature:   z.current,
		TargetTemperature:    z.target,
		TRVOpeningPercent:    z.opening,
		EffectiveTemperature: z.EffectiveTemperature(),
		TemperatureOffset:    z.offset,
		TemperatureError:     z.TemperatureError(),
		DemandMetric:         z.DemandMetric(),
		IsHighPriority:       z.IsHighPriority(),
		IsDemandingHeat:      z.IsDemandingHeat(),
	}
	if z.external != nil {
		v := *z.external
		s.ExternalSensorTemperature = &v
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
