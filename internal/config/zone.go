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

package config

import (
	"math"

	"github.com/pkg/errors"
)

const zoneDefaultPriority = 1.0

type ZoneConfig struct {
	Priority          *float64 `yaml:"priority"`
	FloorArea         *float64 `yaml:"floor_area"`
	IsDischargeZone   bool     `yaml:"is_discharge_zone"`
	UseExternalSensor bool     `yaml:"use_external_sensor"`

	CurrentTemperature  *SensorConfig `yaml:"current_temperature"`
	TargetTemperature   *SensorConfig `yaml:"target_temperature"`
	TRVOpening          *SensorConfig `yaml:"trv_opening"`
	ExternalTemperature *SensorConfig `yaml:"external_temperature,omitempty"`

	OffsetTopic    string `yaml:"offset_topic,omitempty"`
	DischargeTopic string `yaml:"discharge_topic,omitempty"`
}

func NewZoneConfig() *ZoneConfig {
	cfg := &ZoneConfig{}
	cfg.FillDefaults()
	return cfg
}

func (z *ZoneConfig) FillDefaults() {
	if z.Priority == nil {
		z.Priority = GetPTR(zoneDefaultPriority)
	}
	if z.FloorArea == nil {
		z.FloorArea = GetPTR(0.0)
	}
	for _, s := range z.Sensors() {
		s.FillDefaults()
	}
}

// Sensors lists the configured readings of the zone.
func (z *ZoneConfig) Sensors() []*SensorConfig {
	var out []*SensorConfig
	for _, s := range []*SensorConfig{z.CurrentTemperature, z.TargetTemperature, z.TRVOpening, z.ExternalTemperature} {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (z *ZoneConfig) Validate() error {
	if p := *z.Priority; math.IsNaN(p) || p < 0 || p > 1 {
		return errors.Errorf("priority must be within [0, 1], got %v", p)
	}
	if a := *z.FloorArea; math.IsNaN(a) || a < 0 {
		return errors.Errorf("floor_area must not be negative, got %v", a)
	}
	if z.UseExternalSensor && z.ExternalTemperature == nil {
		return errors.New("use_external_sensor is set without external_temperature")
	}
	if z.IsDischargeZone && z.DischargeTopic == "" {
		return errors.New("discharge zone without discharge_topic")
	}
	return nil
}
