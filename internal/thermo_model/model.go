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

package thermo_model

import (
	"math"
	"time"
)

// DefaultTuning scales a thermal load (°C·m²) spread over the remaining time
// into a flow temperature increment. Larger is more aggressive.
const DefaultTuning = 10 * time.Minute

type ZoneLoad struct {
	HighPriority     bool
	TemperatureError float64
	FloorArea        float64
}

// ThermalLoad is the largest error × floor area over high-priority zones
// below target.
func ThermalLoad(zones []ZoneLoad) float64 {
	load := 0.0
	for _, z := range zones {
		if !z.HighPriority || z.TemperatureError <= 0 || z.FloorArea <= 0 {
			continue
		}
		load = math.Max(load, z.TemperatureError*z.FloorArea)
	}
	return load
}

// Estimate grows as the deadline approaches. At or past the deadline it is 0.
func Estimate(load float64, remaining, tuning time.Duration) float64 {
	if load <= 0 || remaining <= 0 || tuning <= 0 {
		return 0
	}
	return load * tuning.Seconds() / remaining.Seconds()
}
