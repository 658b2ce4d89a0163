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
	"time"
)

// PreHeatState is exported for monitoring. ForcedFlowTemperature is only set
// while pre-heating is active.
type PreHeatState struct {
	Active                bool       `json:"active"`
	ThermalLoadEstimate   float64    `json:"thermal_load_estimate"`
	ForcedFlowTemperature *float64   `json:"forced_flow_temperature,omitempty"`
	Deadline              *time.Time `json:"deadline,omitempty"`
}

// PreHeatController forces a minimum boiler output ahead of an anticipated
// demand window. It only ever raises the demand-driven output.
type PreHeatController struct {
	active   bool
	estimate float64
	deadline time.Time
}

func NewPreHeatController() *PreHeatController {
	return &PreHeatController{}
}

// ForcedFlowTemperature maps a thermal-load estimate onto the same range as
// the demand-driven flow temperature.
func ForcedFlowTemperature(estimate float64) float64 {
	if math.IsNaN(estimate) || estimate <= 0 {
		return MinFlowTemperature
	}
	return clamp(MinFlowTemperature+estimate, MinFlowTemperature, MaxFlowTemperature)
}

func (p *PreHeatController) Activate(estimate float64) error {
	if math.IsNaN(estimate) || math.IsInf(estimate, 0) || estimate < 0 {
		return &ValidationError{Field: "thermal_load_estimate", Value: estimate, Reason: "must be a non-negative finite number"}
	}
	p.active = true
	p.estimate = estimate
	return nil
}

// Deactivate clears the forced state. Commands already issued are not revisited.
func (p *PreHeatController) Deactivate() {
	p.active = false
	p.estimate = 0
}

func (p *PreHeatController) IsActive() bool { return p.active }

// Schedule arms pre-heating until deadline, the estimate is refreshed on
// every pass by the owning Controller.
func (p *PreHeatController) Schedule(deadline time.Time) {
	p.deadline = deadline
}

func (p *PreHeatController) Unschedule() {
	p.deadline = time.Time{}
}

func (p *PreHeatController) Deadline() (time.Time, bool) {
	return p.deadline, !p.deadline.IsZero()
}

// Override applies the pre-heat floor to a demand-driven command. A zero
// estimate leaves the command untouched.
func (p *PreHeatController) Override(boilerOn bool, flow float64) (bool, float64) {
	if !p.active || p.estimate <= 0 {
		return boilerOn, flow
	}
	return true, math.Max(flow, ForcedFlowTemperature(p.estimate))
}

func (p *PreHeatController) State() PreHeatState {
	s := PreHeatState{Active: p.active, ThermalLoadEstimate: p.estimate}
	if p.active {
		f := ForcedFlowTemperature(p.estimate)
		s.ForcedFlowTemperature = &f
	}
	if !p.deadline.IsZero() {
		d := p.deadline
		s.Deadline = &d
	}
	return s
}
