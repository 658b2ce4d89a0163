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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsetStepsDownToFloor(t *testing.T) {
	oc := NewOffsetController(2)
	z := newTestZone(t, "living", 1)
	require.NoError(t, z.Update(Reading{CurrentTemperature: f(18), TargetTemperature: f(21), TRVOpeningPercent: f(50)}))

	want := []float64{-2, -4, -5, -5}
	for i, w := range want {
		cmd := oc.Apply(z)
		assert.Equal(t, "living", cmd.ZoneID)
		assert.Equal(t, w, cmd.Offset, "step %d", i)
		assert.GreaterOrEqual(t, z.TemperatureOffset(), MinTemperatureOffset)
	}
}

func TestOffsetResetsInOneStepAtTarget(t *testing.T) {
	oc := NewOffsetController(1)
	z := newTestZone(t, "living", 1)
	require.NoError(t, z.Update(Reading{CurrentTemperature: f(18), TargetTemperature: f(21), TRVOpeningPercent: f(50)}))
	for i := 0; i < 3; i++ {
		oc.Apply(z)
	}
	assert.Equal(t, -3.0, z.TemperatureOffset())

	require.NoError(t, z.Update(Reading{CurrentTemperature: f(21)}))
	assert.Equal(t, 0.0, oc.Apply(z).Offset)
}

func TestOffsetHeldWhenNotDemanding(t *testing.T) {
	oc := NewOffsetController(2)
	z := newTestZone(t, "living", 1)
	require.NoError(t, z.Update(Reading{CurrentTemperature: f(18), TargetTemperature: f(21), TRVOpeningPercent: f(50)}))
	oc.Apply(z)

	// Below target but the valve is nearly shut: not demanding, offset stays.
	require.NoError(t, z.Update(Reading{TRVOpeningPercent: f(10)}))
	assert.Equal(t, -2.0, oc.Apply(z).Offset)
}

func TestOffsetDefaultStep(t *testing.T) {
	assert.Equal(t, DefaultOffsetStep, NewOffsetController(0).Step())
	assert.Equal(t, DefaultOffsetStep, NewOffsetController(-1).Step())
	assert.Equal(t, 0.5, NewOffsetController(0.5).Step())
}

func TestOffsetReset(t *testing.T) {
	oc := NewOffsetController(2)
	z := newTestZone(t, "living", 1)
	require.NoError(t, z.Update(Reading{CurrentTemperature: f(18), TargetTemperature: f(21), TRVOpeningPercent: f(50)}))
	oc.Apply(z)
	assert.Equal(t, OffsetCommand{ZoneID: "living", Offset: 0}, oc.Reset(z))
	assert.Zero(t, z.TemperatureOffset())
}
