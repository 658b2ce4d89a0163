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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, opts Options, zones ...ZoneConfig) *Controller {
	t.Helper()
	c, err := NewController(zones, opts)
	require.NoError(t, err)
	return c
}

func reading(current, target, opening float64) Reading {
	return Reading{CurrentTemperature: f(current), TargetTemperature: f(target), TRVOpeningPercent: f(opening)}
}

func TestNewControllerRejectsDuplicates(t *testing.T) {
	_, err := NewController([]ZoneConfig{{ID: "a", Priority: 1}, {ID: "a", Priority: 0}}, Options{})
	assert.True(t, IsConfiguration(err))

	_, err = NewController([]ZoneConfig{{ID: "a", Priority: 2}}, Options{})
	assert.True(t, IsValidation(err))
}

func TestControllerHeatingCycle(t *testing.T) {
	c := newTestController(t, Options{OffsetStep: 2, DischargeCooldown: 5 * time.Minute},
		ZoneConfig{ID: "living", Priority: 1},
		ZoneConfig{ID: "towel", Priority: 0, IsDischargeZone: true},
	)

	out, err := c.Handle(ZoneStateChanged{ZoneID: "living", Reading: reading(18, 21, 100)}, t0)
	require.NoError(t, err)
	require.NotNil(t, out.Boiler)
	assert.True(t, out.Boiler.On)
	assert.InDelta(t, 27.5, out.Boiler.FlowTemperature, 1e-9)
	assert.Equal(t, []OffsetCommand{{ZoneID: "living", Offset: -2}}, out.Offsets)
	assert.Equal(t, []DischargeCommand{{ZoneID: "towel", DischargeOn: true}}, out.Discharges)

	// Same reading again: the boiler command is not repeated.
	out, err = c.Handle(ZoneStateChanged{ZoneID: "living", Reading: reading(18, 21, 100)}, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, out.Boiler)
	assert.Empty(t, out.Discharges)

	out, err = c.Handle(ZoneStateChanged{ZoneID: "living", Reading: Reading{CurrentTemperature: f(21)}}, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, out.Boiler)
	assert.Equal(t, BoilerCommand{On: false, FlowTemperature: 5}, *out.Boiler)
	assert.Equal(t, []OffsetCommand{{ZoneID: "living", Offset: 0}}, out.Offsets)
	assert.Empty(t, out.Discharges, "discharge stays on through cooldown")

	deadline, ok := c.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, t0.Add(7*time.Minute), deadline)

	assert.True(t, c.Tick(t0.Add(6*time.Minute)).Empty())
	out = c.Tick(deadline)
	assert.Nil(t, out.Boiler)
	assert.Equal(t, []DischargeCommand{{ZoneID: "towel", DischargeOn: false}}, out.Discharges)
}

func TestControllerIgnoresDischargeZoneDemand(t *testing.T) {
	c := newTestController(t, Options{},
		ZoneConfig{ID: "towel", Priority: 1, IsDischargeZone: true},
	)
	out, err := c.Handle(ZoneStateChanged{ZoneID: "towel", Reading: reading(10, 21, 100)}, t0)
	require.NoError(t, err)
	require.NotNil(t, out.Boiler)
	assert.False(t, out.Boiler.On)
	assert.Empty(t, out.Offsets)
	assert.Empty(t, out.Discharges)
}

func TestControllerUnknownZone(t *testing.T) {
	c := newTestController(t, Options{}, ZoneConfig{ID: "living", Priority: 1})
	out, err := c.Handle(ZoneStateChanged{ZoneID: "garage", Reading: reading(10, 21, 100)}, t0)
	assert.True(t, IsConfiguration(err))
	assert.True(t, out.Empty())

	_, err = c.ZoneState("garage")
	assert.True(t, IsConfiguration(err))
}

func TestControllerInvalidReadingLeavesStateUnchanged(t *testing.T) {
	c := newTestController(t, Options{}, ZoneConfig{ID: "living", Priority: 1})
	_, err := c.Handle(ZoneStateChanged{ZoneID: "living", Reading: reading(18, 21, 50)}, t0)
	require.NoError(t, err)
	before := c.State()

	out, err := c.Handle(ZoneStateChanged{ZoneID: "living", Reading: reading(10, 30, 150)}, t0.Add(time.Minute))
	assert.True(t, IsValidation(err))
	assert.True(t, out.Empty())
	assert.Equal(t, before, c.State())
}

func TestControllerOnlyUpdatedZoneSteps(t *testing.T) {
	c := newTestController(t, Options{OffsetStep: 1},
		ZoneConfig{ID: "bedroom", Priority: 1},
		ZoneConfig{ID: "living", Priority: 1},
	)
	_, err := c.Handle(ZoneStateChanged{ZoneID: "living", Reading: reading(18, 21, 50)}, t0)
	require.NoError(t, err)
	out, err := c.Handle(ZoneStateChanged{ZoneID: "bedroom", Reading: reading(17, 20, 50)}, t0)
	require.NoError(t, err)
	assert.Equal(t, []OffsetCommand{{ZoneID: "bedroom", Offset: -1}}, out.Offsets)

	out = c.Tick(t0.Add(time.Minute))
	assert.Empty(t, out.Offsets)

	living, err := c.ZoneState("living")
	require.NoError(t, err)
	assert.Equal(t, -1.0, living.TemperatureOffset)
}

func TestControllerResetOffsetsOnBoilerOff(t *testing.T) {
	c := newTestController(t, Options{OffsetStep: 1, ResetOffsetsOnBoilerOff: true},
		ZoneConfig{ID: "bedroom", Priority: 1},
		ZoneConfig{ID: "living", Priority: 1},
	)
	_, err := c.Handle(ZoneStateChanged{ZoneID: "living", Reading: reading(18, 21, 50)}, t0)
	require.NoError(t, err)
	_, err = c.Handle(ZoneStateChanged{ZoneID: "bedroom", Reading: reading(17, 20, 50)}, t0)
	require.NoError(t, err)
	// Bedroom stops demanding but keeps its offset.
	out, err := c.Handle(ZoneStateChanged{ZoneID: "bedroom", Reading: Reading{TRVOpeningPercent: f(10)}}, t0)
	require.NoError(t, err)
	assert.Empty(t, out.Offsets)

	out, err = c.Handle(ZoneStateChanged{ZoneID: "living", Reading: Reading{CurrentTemperature: f(21)}}, t0.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, out.Boiler)
	assert.False(t, out.Boiler.On)
	assert.ElementsMatch(t, []OffsetCommand{{ZoneID: "bedroom", Offset: 0}, {ZoneID: "living", Offset: 0}}, out.Offsets)
}

func TestControllerDisabled(t *testing.T) {
	c := newTestController(t, Options{}, ZoneConfig{ID: "living", Priority: 1})
	_, err := c.Handle(ZoneStateChanged{ZoneID: "living", Reading: reading(18, 21, 100)}, t0)
	require.NoError(t, err)

	out := c.SetEnabled(false, t0)
	require.NotNil(t, out.Boiler)
	assert.Equal(t, BoilerCommand{On: false, FlowTemperature: 5}, *out.Boiler)
	assert.False(t, c.Enabled())

	out, err = c.Handle(ZoneStateChanged{ZoneID: "living", Reading: reading(15, 21, 100)}, t0)
	require.NoError(t, err)
	assert.Nil(t, out.Boiler)
	assert.Empty(t, out.Offsets)

	out = c.SetEnabled(true, t0)
	require.NotNil(t, out.Boiler)
	assert.True(t, out.Boiler.On)
	assert.InDelta(t, 50.0, out.Boiler.FlowTemperature, 1e-9)
}

func TestControllerPreHeat(t *testing.T) {
	c := newTestController(t, Options{}, ZoneConfig{ID: "living", Priority: 1})
	_, err := c.Handle(ZoneStateChanged{ZoneID: "living", Reading: reading(21, 21, 0)}, t0)
	require.NoError(t, err)

	out, err := c.ActivatePreHeat(20, t0)
	require.NoError(t, err)
	require.NotNil(t, out.Boiler)
	assert.Equal(t, BoilerCommand{On: true, FlowTemperature: 25}, *out.Boiler)
	assert.True(t, c.State().PreHeat.Active)

	_, err = c.ActivatePreHeat(-1, t0)
	assert.True(t, IsValidation(err))

	out = c.DeactivatePreHeat(t0)
	require.NotNil(t, out.Boiler)
	assert.False(t, out.Boiler.On)

	out, err = c.ActivatePreHeat(0, t0)
	require.NoError(t, err)
	assert.Nil(t, out.Boiler, "zero estimate changes nothing")
}

func TestControllerScheduledPreHeat(t *testing.T) {
	c := newTestController(t, Options{PreHeatTuning: 10 * time.Minute},
		ZoneConfig{ID: "living", Priority: 1, FloorArea: 10},
	)
	// Below target but the valve is shut, so demand alone keeps the boiler off.
	_, err := c.Handle(ZoneStateChanged{ZoneID: "living", Reading: reading(18, 21, 0)}, t0)
	require.NoError(t, err)

	deadline := t0.Add(30 * time.Minute)
	out := c.SchedulePreHeat(deadline, t0)
	require.NotNil(t, out.Boiler)
	assert.True(t, out.Boiler.On)
	assert.InDelta(t, 15.0, out.Boiler.FlowTemperature, 1e-9)

	next, ok := c.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, deadline, next)

	out = c.Tick(t0.Add(20 * time.Minute))
	require.NotNil(t, out.Boiler)
	assert.InDelta(t, 35.0, out.Boiler.FlowTemperature, 1e-9)

	out = c.Tick(deadline)
	require.NotNil(t, out.Boiler)
	assert.False(t, out.Boiler.On)
	assert.False(t, c.State().PreHeat.Active)
	_, ok = c.NextDeadline()
	assert.False(t, ok)
}

func TestControllerLoadRunsNoPass(t *testing.T) {
	c := newTestController(t, Options{OffsetStep: 2}, ZoneConfig{ID: "living", Priority: 1})

	require.NoError(t, c.Load(ZoneStateChanged{ZoneID: "living", Reading: reading(15, 21, 100)}))
	assert.Nil(t, c.State().Boiler)

	err := c.Load(ZoneStateChanged{ZoneID: "attic", Reading: reading(15, 21, 100)})
	assert.True(t, IsConfiguration(err))
	err = c.Load(ZoneStateChanged{ZoneID: "living", Reading: Reading{TRVOpeningPercent: f(120)}})
	assert.True(t, IsValidation(err))

	s, err := c.ZoneState("living")
	require.NoError(t, err)
	assert.Equal(t, 100.0, s.TRVOpeningPercent)
	assert.Zero(t, s.TemperatureOffset)
}

func TestControllerResume(t *testing.T) {
	zones := []ZoneConfig{
		{ID: "living", Priority: 1, FloorArea: 10},
		{ID: "towel", Priority: 0, IsDischargeZone: true},
	}

	c := newTestController(t, Options{OffsetStep: 2, DischargeCooldown: time.Minute}, zones...)
	require.NoError(t, c.Load(ZoneStateChanged{ZoneID: "living", Reading: reading(15, 21, 100)}))
	out := c.Resume(false, t0.Add(time.Hour), t0)
	require.NotNil(t, out.Boiler)
	assert.Equal(t, BoilerCommand{On: false, FlowTemperature: 5}, *out.Boiler)
	assert.Empty(t, out.Offsets)
	assert.Empty(t, out.Discharges)
	assert.False(t, c.Enabled())
	_, scheduled := c.NextDeadline()
	assert.True(t, scheduled)

	c = newTestController(t, Options{OffsetStep: 2, DischargeCooldown: time.Minute}, zones...)
	require.NoError(t, c.Load(ZoneStateChanged{ZoneID: "living", Reading: reading(15, 21, 100)}))
	out = c.Resume(true, time.Time{}, t0)
	require.NotNil(t, out.Boiler)
	assert.True(t, out.Boiler.On)
	assert.InDelta(t, 50.0, out.Boiler.FlowTemperature, 1e-9)
	assert.Empty(t, out.Offsets)
	assert.Equal(t, []DischargeCommand{{ZoneID: "towel", DischargeOn: true}}, out.Discharges)
	_, scheduled = c.NextDeadline()
	assert.False(t, scheduled)
}

func TestControllerState(t *testing.T) {
	c := newTestController(t, Options{DischargeCooldown: time.Minute},
		ZoneConfig{ID: "b", Priority: 1},
		ZoneConfig{ID: "a", Priority: 0, IsDischargeZone: true},
	)
	assert.Equal(t, []string{"a", "b"}, c.ZoneIDs())

	s := c.State()
	assert.True(t, s.Enabled)
	assert.Nil(t, s.Boiler)
	assert.Len(t, s.Zones, 2)
	assert.Equal(t, 60.0, s.DischargeCooldown)
	assert.Equal(t, []DischargeState{{ZoneID: "a", Phase: DischargeIdle}}, s.Discharge)
}
