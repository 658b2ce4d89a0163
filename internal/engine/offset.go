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

const DefaultOffsetStep = 2.0

// OffsetCommand asks a TRV to apply a temperature calibration offset.
type OffsetCommand struct {
	ZoneID string  `json:"zone_id"`
	Offset float64 `json:"offset"`
}

// OffsetController biases a demanding zone's TRV towards opening by lowering
// its offset one step per pass, and resets it once the zone reaches target.
type OffsetController struct {
	step float64
}

func NewOffsetController(step float64) *OffsetController {
	if step <= 0 {
		step = DefaultOffsetStep
	}
	return &OffsetController{step: step}
}

func (c *OffsetController) Step() float64 { return c.step }

func (c *OffsetController) Apply(z *Zone) OffsetCommand {
	switch {
	case z.AtTarget():
		z.setTemperatureOffset(0)
	case z.IsDemandingHeat():
		z.setTemperatureOffset(z.TemperatureOffset() - c.step)
	}
	return OffsetCommand{ZoneID: z.ID(), Offset: z.TemperatureOffset()}
}

// Reset puts the zone's offset back to neutral.
func (c *OffsetController) Reset(z *Zone) OffsetCommand {
	z.setTemperatureOffset(0)
	return OffsetCommand{ZoneID: z.ID(), Offset: 0}
}
