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
	"time"

	"github.com/antst/mztrvc/internal/config"
	"github.com/antst/mztrvc/internal/engine"
	"github.com/antst/mztrvc/internal/logger"
	"github.com/antst/mztrvc/internal/safe_mqtt"
)

const publishTimeout = 10 * time.Second

type BoilerController struct {
	cfg     *config.BoilerConfig
	qos     byte
	mqtt    safe_mqtt.MqttClient
	onError func(kind string)
}

func NewBoilerController(cfg *config.BoilerConfig, qos byte, client safe_mqtt.MqttClient) *BoilerController {
	return &BoilerController{cfg: cfg, qos: qos, mqtt: client, onError: func(string) {}}
}

// Update publishes the command retained, so a restarting boiler gateway picks
// up the last decision.
func (b *BoilerController) Update(cmd engine.BoilerCommand) {
	if b.cfg.FlowTemperatureTopic != "" {
		b.publish(b.cfg.FlowTemperatureTopic, fmt.Sprintf("%.1f", cmd.FlowTemperature))
	}

	chEnable := "0"
	if cmd.On {
		chEnable = "1"
	}
	if b.cfg.CHEnableTopic != "" {
		b.publish(b.cfg.CHEnableTopic, chEnable)
	}
}

func (b *BoilerController) publish(topic, payload string) {
	token := b.mqtt.SafePublish(topic, b.qos, true, payload)
	go func() {
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			logger.L().Errorf("Boiler: publish to %s failed: %v", topic, token.Error())
			b.onError("boiler")
		}
	}()
}
