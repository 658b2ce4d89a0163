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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antst/mztrvc/internal/config"
	"github.com/antst/mztrvc/internal/engine"
)

func trvZone(topic string, priority float64) *config.ZoneConfig {
	z := config.NewZoneConfig()
	z.Priority = config.GetPTR(priority)
	z.CurrentTemperature = config.NewSensorConfig(topic)
	z.CurrentTemperature.JSONEntry = config.GetPTR("local_temperature")
	z.TargetTemperature = config.NewSensorConfig(topic)
	z.TargetTemperature.JSONEntry = config.GetPTR("occupied_heating_setpoint")
	z.TRVOpening = config.NewSensorConfig(topic)
	z.TRVOpening.JSONEntry = config.GetPTR("pi_heating_demand")
	z.OffsetTopic = topic + "/set/local_temperature_calibration"
	return z
}

func TestZoneReadingMergesSharedTopic(t *testing.T) {
	events := make(chan engine.ZoneStateChanged, 1)
	z := newZoneController("living", trvZone("zigbee2mqtt/living", 1), 1, newFakeMQTT(), events)
	assert.Equal(t, []string{"zigbee2mqtt/living"}, z.Topics())

	ev, ok := z.reading(msg("zigbee2mqtt/living",
		`{"local_temperature":19.5,"occupied_heating_setpoint":21,"pi_heating_demand":40,"battery":87}`))
	require.True(t, ok)
	assert.Equal(t, "living", ev.ZoneID)
	require.NotNil(t, ev.CurrentTemperature)
	assert.Equal(t, 19.5, *ev.CurrentTemperature)
	require.NotNil(t, ev.TargetTemperature)
	assert.Equal(t, 21.0, *ev.TargetTemperature)
	require.NotNil(t, ev.TRVOpeningPercent)
	assert.Equal(t, 40.0, *ev.TRVOpeningPercent)
	assert.Nil(t, ev.ExternalSensorTemperature)
}

func TestZoneReadingPartialAndUnavailable(t *testing.T) {
	events := make(chan engine.ZoneStateChanged, 1)
	z := newZoneController("living", trvZone("zigbee2mqtt/living", 1), 1, newFakeMQTT(), events)

	ev, ok := z.reading(msg("zigbee2mqtt/living", `{"pi_heating_demand":55}`))
	require.True(t, ok)
	assert.Nil(t, ev.CurrentTemperature)
	assert.Equal(t, 55.0, *ev.TRVOpeningPercent)

	_, ok = z.reading(msg("zigbee2mqtt/living", `{"local_temperature":"unavailable","linkquality":80}`))
	assert.False(t, ok)

	_, ok = z.reading(msg("zigbee2mqtt/living", "unavailable"))
	assert.False(t, ok)

	_, ok = z.reading(msg("zigbee2mqtt/other", `{"local_temperature":20}`))
	assert.False(t, ok)
}

func TestZoneSensorScaleAndOffset(t *testing.T) {
	cfg := config.NewZoneConfig()
	cfg.UseExternalSensor = true
	cfg.ExternalTemperature = config.NewSensorConfig("sensors/bath/temperature")
	cfg.ExternalTemperature.Scale = config.GetPTR(0.1)
	cfg.ExternalTemperature.Offset = config.GetPTR(-0.5)
	z := newZoneController("bath", cfg, 1, newFakeMQTT(), make(chan engine.ZoneStateChanged, 1))

	ev, ok := z.reading(msg("sensors/bath/temperature", "215"))
	require.True(t, ok)
	require.NotNil(t, ev.ExternalSensorTemperature)
	assert.InDelta(t, 21.0, *ev.ExternalSensorTemperature, 1e-9)

	assert.True(t, z.EngineConfig().UseExternalSensor)
}

func TestZoneReadingHandler(t *testing.T) {
	events := make(chan engine.ZoneStateChanged, 1)
	z := newZoneController("living", trvZone("zigbee2mqtt/living", 1), 1, newFakeMQTT(), events)

	z.readingHandler(nil, msg("zigbee2mqtt/living", `{"local_temperature":18}`))
	select {
	case ev := <-events:
		assert.Equal(t, 18.0, *ev.CurrentTemperature)
	default:
		t.Fatal("no event forwarded")
	}

	z.readingHandler(nil, msg("zigbee2mqtt/living", `{"battery":50}`))
	assert.Empty(t, events)
}

func TestZonePublishCommands(t *testing.T) {
	client := newFakeMQTT()
	cfg := trvZone("zigbee2mqtt/living", 1)
	cfg.DischargeTopic = "shellies/towel/relay/0/command"
	z := newZoneController("living", cfg, 1, client, nil)

	z.PublishOffset(-2)
	z.PublishDischarge(true)

	off, ok := client.last("zigbee2mqtt/living/set/local_temperature_calibration")
	require.True(t, ok)
	assert.Equal(t, "-2.0", off)
	dis, ok := client.last("shellies/towel/relay/0/command")
	require.True(t, ok)
	assert.Equal(t, "ON", dis)

	cfg.OffsetTopic = ""
	z.PublishOffset(-4)
	assert.Equal(t, 1, client.count("zigbee2mqtt/living/set/local_temperature_calibration"))
}
