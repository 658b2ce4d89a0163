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

package internal

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/antst/mztrvc/internal/config"
	"github.com/antst/mztrvc/internal/engine"
)

type sensorField int

const (
	fieldCurrentTemperature sensorField = iota
	fieldTargetTemperature
	fieldTRVOpening
	fieldExternalTemperature
)

func (f sensorField) String() string {
	switch f {
	case fieldCurrentTemperature:
		return "current_temperature"
	case fieldTargetTemperature:
		return "target_temperature"
	case fieldTRVOpening:
		return "trv_opening"
	case fieldExternalTemperature:
		return "external_temperature"
	}
	return "unknown"
}

// SensorController turns MQTT payloads into one field of a zone reading.
type SensorController struct {
	name  string
	field sensorField
	cfg   *config.SensorConfig
}

func NewSensorController(zone string, field sensorField, cfg *config.SensorConfig) *SensorController {
	return &SensorController{
		name:  zone + "/" + field.String(),
		field: field,
		cfg:   cfg,
	}
}

// Read extracts and converts the value carried by message.
func (s *SensorController) Read(message mqtt.Message) (float64, error) {
	raw, err := extractF64PlainOrJson(message, s.cfg.JSONEntry)
	if err != nil {
		return 0, err
	}
	return s.cfg.Apply(raw), nil
}

// Set writes v into the matching field of r.
func (s *SensorController) Set(r *engine.Reading, v float64) {
	switch s.field {
	case fieldCurrentTemperature:
		r.CurrentTemperature = &v
	case fieldTargetTemperature:
		r.TargetTemperature = &v
	case fieldTRVOpening:
		r.TRVOpeningPercent = &v
	case fieldExternalTemperature:
		r.ExternalSensorTemperature = &v
	}
}
