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
	"fmt"
	"sort"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/antst/mztrvc/internal/config"
	"github.com/antst/mztrvc/internal/engine"
	"github.com/antst/mztrvc/internal/logger"
	"github.com/antst/mztrvc/internal/safe_mqtt"
)

// ZoneController is the MQTT side of one zone: it turns the zone's readings
// into events and publishes the offset and discharge commands for it.
type ZoneController struct {
	name    string
	cfg     *config.ZoneConfig
	qos     byte
	mqtt    safe_mqtt.MqttClient
	sensors map[string][]*SensorController
	events  chan<- engine.ZoneStateChanged
	onError func(kind string)
}

func newZoneController(
	name string, cfg *config.ZoneConfig, qos byte, client safe_mqtt.MqttClient,
	events chan<- engine.ZoneStateChanged,
) *ZoneController {
	z := &ZoneController{
		name:    name,
		cfg:     cfg,
		qos:     qos,
		mqtt:    client,
		sensors: make(map[string][]*SensorController),
		events:  events,
		onError: func(string) {},
	}

	for field, s := range map[sensorField]*config.SensorConfig{
		fieldCurrentTemperature:  cfg.CurrentTemperature,
		fieldTargetTemperature:   cfg.TargetTemperature,
		fieldTRVOpening:          cfg.TRVOpening,
		fieldExternalTemperature: cfg.ExternalTemperature,
	} {
		if s == nil || s.Topic == "" {
			continue
		}
		z.sensors[s.Topic] = append(z.sensors[s.Topic], NewSensorController(name, field, s))
	}
	for _, list := range z.sensors {
		sort.Slice(list, func(i, j int) bool { return list[i].field < list[j].field })
	}
	return z
}

func (z *ZoneController) EngineConfig() engine.ZoneConfig {
	return engine.ZoneConfig{
		ID:                z.name,
		Priority:          *z.cfg.Priority,
		FloorArea:         *z.cfg.FloorArea,
		IsDischargeZone:   z.cfg.IsDischargeZone,
		UseExternalSensor: z.cfg.UseExternalSensor,
	}
}

// Topics lists the distinct reading topics. TRVs usually publish all their
// readings in a single JSON object.
func (z *ZoneController) Topics() []string {
	topics := make([]string, 0, len(z.sensors))
	for t := range z.sensors {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

func (z *ZoneController) readingHandler(_ mqtt.Client, message mqtt.Message) {
	ev, ok := z.reading(message)
	if !ok {
		return
	}
	logger.L().Debugf("Got reading for zone `%s` from %s", z.name, message.Topic())
	z.events <- ev
}

func (z *ZoneController) reading(message mqtt.Message) (engine.ZoneStateChanged, bool) {
	ev := engine.ZoneStateChanged{ZoneID: z.name}
	for _, s := range z.sensors[message.Topic()] {
		v, err := s.Read(message)
		if err != nil {
			if !errors.Is(err, errNoReading) {
				logger.L().Warnf("Sensor %s: %v", s.name, err)
			}
			continue
		}
		s.Set(&ev.Reading, v)
	}
	return ev, !ev.IsEmpty()
}

func (z *ZoneController) PublishOffset(offset float64) {
	if z.cfg.OffsetTopic == "" {
		return
	}
	z.publish("offset", z.cfg.OffsetTopic, false, fmt.Sprintf("%.1f", offset))
}

func (z *ZoneController) PublishDischarge(on bool) {
	if z.cfg.DischargeTopic == "" {
		return
	}
	z.publish("discharge", z.cfg.DischargeTopic, true, formatSwitch(on))
}

func (z *ZoneController) publish(kind, topic string, retained bool, payload string) {
	token := z.mqtt.SafePublish(topic, z.qos, retained, payload)
	go func() {
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			logger.L().Errorf("Zone `%s`: publish %s to %s failed: %v", z.name, kind, topic, token.Error())
			z.onError(kind)
		}
	}()
}
