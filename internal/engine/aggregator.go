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
	"sort"
)

const (
	MinFlowTemperature = 5.0
	MaxFlowTemperature = 80.0
	// Sum of low-priority openings that turns the boiler on.
	LowPriorityAggregateOpening = 100.0
)

// AggregateDecision is the result of one aggregation pass.
type AggregateDecision struct {
	BoilerOn             bool     `json:"boiler_on"`
	DrivingDemandMetric  float64  `json:"driving_demand_metric"`
	ContributingZoneIDs  []string `json:"contributing_zone_ids"`
	LowPriorityAggregate float64  `json:"low_priority_aggregate"`
	FlowTemperature      float64  `json:"flow_temperature"`
}

// FlowTemperature maps a demand metric onto the boiler flow temperature.
func FlowTemperature(demand float64) float64 {
	if math.IsNaN(demand) {
		return MinFlowTemperature
	}
	return clamp(MinFlowTemperature+demand*(MaxFlowTemperature-MinFlowTemperature), MinFlowTemperature, MaxFlowTemperature)
}

// DemandAggregator reduces a consistent view of all zones into a boiler
// on/off decision and an intensity.
type DemandAggregator struct{}

func (DemandAggregator) Decide(zones []ZoneSnapshot, excluded map[string]bool) AggregateDecision {
	var (
		high        []ZoneSnapshot
		low         []ZoneSnapshot
		lowOpenings float64
	)

	for _, z := range zones {
		if excluded[z.ID] {
			continue
		}
		if z.IsHighPriority {
			if z.IsDemandingHeat {
				high = append(high, z)
			}
			continue
		}
		low = append(low, z)
		lowOpenings += z.TRVOpeningPercent
	}

	contributing := high
	if lowOpenings >= LowPriorityAggregateOpening {
		contributing = append(contributing, low...)
	}

	d := AggregateDecision{
		LowPriorityAggregate: lowOpenings,
		FlowTemperature:      MinFlowTemperature,
	}
	for _, z := range contributing {
		d.DrivingDemandMetric = math.Max(d.DrivingDemandMetric, z.DemandMetric)
	}
	if len(contributing) == 0 || d.DrivingDemandMetric <= 0 {
		d.DrivingDemandMetric = 0
		return d
	}

	d.BoilerOn = true
	d.FlowTemperature = FlowTemperature(d.DrivingDemandMetric)
	d.ContributingZoneIDs = make([]string, 0, len(contributing))
	for _, z := range contributing {
		d.ContributingZoneIDs = append(d.ContributingZoneIDs, z.ID)
	}
	sort.Strings(d.ContributingZoneIDs)
	return d
}
