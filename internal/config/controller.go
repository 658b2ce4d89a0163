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
	"time"

	"github.com/pkg/errors"
)

const (
	defaultOffsetStep     = 2.0
	defaultTickInterval   = 5 * time.Second
	defaultCooldown       = 5 * time.Minute
	defaultTuningSeconds  = 600.0
	defaultHTTPListenAddr = ":8088"
)

// BoilerConfig holds the command topics of the heat source. Flow temperature
// is published as a plain number, ch_enable as 1/0.
type BoilerConfig struct {
	FlowTemperatureTopic string `yaml:"flow_temperature_topic"`
	CHEnableTopic        string `yaml:"ch_enable_topic"`
}

func NewBoilerConfig() *BoilerConfig {
	return &BoilerConfig{}
}

type ControllerConfig struct {
	OffsetStep              *float64       `yaml:"offset_step"`
	TickInterval            *time.Duration `yaml:"tick_interval"`
	ResetOffsetsOnBoilerOff bool           `yaml:"reset_offsets_on_boiler_off"`
}

func NewControllerConfig() *ControllerConfig {
	cfg := &ControllerConfig{}
	cfg.FillDefaults()
	return cfg
}

func (c *ControllerConfig) FillDefaults() {
	if c.OffsetStep == nil {
		c.OffsetStep = GetPTR(defaultOffsetStep)
	}
	if c.TickInterval == nil || *c.TickInterval <= 0 {
		c.TickInterval = GetPTR(defaultTickInterval)
	}
}

func (c *ControllerConfig) Validate() error {
	if *c.OffsetStep <= 0 {
		return errors.Errorf("offset_step must be positive, got %v", *c.OffsetStep)
	}
	return nil
}

type DischargeConfig struct {
	Cooldown *time.Duration `yaml:"cooldown"`
}

func NewDischargeConfig() *DischargeConfig {
	cfg := &DischargeConfig{}
	cfg.FillDefaults()
	return cfg
}

func (c *DischargeConfig) FillDefaults() {
	if c.Cooldown == nil {
		c.Cooldown = GetPTR(defaultCooldown)
	}
}

type PreHeatConfig struct {
	TuningSeconds *float64 `yaml:"tuning_seconds"`
	// EndTime is an optional HH:MM deadline armed at startup.
	EndTime string `yaml:"end_time,omitempty"`
}

func NewPreHeatConfig() *PreHeatConfig {
	cfg := &PreHeatConfig{}
	cfg.FillDefaults()
	return cfg
}

func (c *PreHeatConfig) FillDefaults() {
	if c.TuningSeconds == nil {
		c.TuningSeconds = GetPTR(defaultTuningSeconds)
	}
}

func (c *PreHeatConfig) Tuning() time.Duration {
	return time.Duration(*c.TuningSeconds * float64(time.Second))
}

func (c *PreHeatConfig) Validate() error {
	if *c.TuningSeconds <= 0 {
		return errors.Errorf("tuning_seconds must be positive, got %v", *c.TuningSeconds)
	}
	if c.EndTime != "" {
		if _, err := time.Parse("15:04", c.EndTime); err != nil {
			return errors.Wrapf(err, "end_time `%s`", c.EndTime)
		}
	}
	return nil
}

// HTTPConfig configures the diagnostics server. An empty listen address
// disables it.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

func NewHTTPConfig() *HTTPConfig {
	return &HTTPConfig{Listen: defaultHTTPListenAddr}
}
