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
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/antst/mztrvc/internal/config"
	"github.com/antst/mztrvc/internal/db"
	"github.com/antst/mztrvc/internal/engine"
	"github.com/antst/mztrvc/internal/logger"
	"github.com/antst/mztrvc/internal/metrics"
	"github.com/antst/mztrvc/internal/safe_mqtt"
)

const (
	eventsBuffer  = 100
	controlBuffer = 10

	valueEnabled         = "enabled"
	valuePreHeatDeadline = "preheat_deadline"
)

type controlRequest struct {
	topic   string
	payload string
}

// ThermoController owns the decision loop. Readings and control requests
// arrive from MQTT callbacks over channels and are applied by Run alone.
type ThermoController struct {
	cfg     *config.Config
	queries *db.Queries
	mqtt    safe_mqtt.MqttClient
	metrics *metrics.Metrics
	engine  *engine.Controller
	zones   map[string]*ZoneController
	boiler  *BoilerController
	events  chan engine.ZoneStateChanged
	control chan controlRequest
	pending []engine.Output
	now     func() time.Time
}

func NewThermoController(
	cfg *config.Config, client safe_mqtt.MqttClient, queries *db.Queries, m *metrics.Metrics,
) (*ThermoController, error) {
	c := &ThermoController{
		cfg:     cfg,
		queries: queries,
		mqtt:    client,
		metrics: m,
		zones:   make(map[string]*ZoneController, len(cfg.Zones)),
		events:  make(chan engine.ZoneStateChanged, eventsBuffer),
		control: make(chan controlRequest, controlBuffer),
		now:     time.Now,
	}
	qos := *cfg.MQTTConfig.QoS

	c.boiler = NewBoilerController(cfg.Boiler, qos, client)
	c.boiler.onError = m.PublishError

	zoneCfgs := make([]engine.ZoneConfig, 0, len(cfg.Zones))
	for name, zcfg := range cfg.Zones {
		zone := newZoneController(name, zcfg, qos, client, c.events)
		zone.onError = m.PublishError
		c.zones[name] = zone
		zoneCfgs = append(zoneCfgs, zone.EngineConfig())
	}
	sort.Slice(zoneCfgs, func(i, j int) bool { return zoneCfgs[i].ID < zoneCfgs[j].ID })

	var err error
	c.engine, err = engine.NewController(zoneCfgs, engine.Options{
		OffsetStep:              *cfg.Controller.OffsetStep,
		DischargeCooldown:       *cfg.Discharge.Cooldown,
		PreHeatTuning:           cfg.PreHeat.Tuning(),
		ResetOffsetsOnBoilerOff: cfg.Controller.ResetOffsetsOnBoilerOff,
		Logger:                  logger.Named("engine"),
	})
	if err != nil {
		return nil, errors.WithMessage(err, "build decision engine")
	}
	return c, nil
}

// Engine exposes the decision engine for read-only diagnostics.
func (c *ThermoController) Engine() *engine.Controller {
	return c.engine
}

// Restore loads the persisted zone readings and controller values, then runs
// a single pass. Its commands are published once Run starts.
func (c *ThermoController) Restore(ctx context.Context) error {
	now := c.now()

	readings, err := c.queries.ListZoneReadings(ctx)
	if err != nil {
		return err
	}
	for _, r := range readings {
		if _, ok := c.zones[r.ZoneName]; !ok {
			continue
		}
		err := c.engine.Load(engine.ZoneStateChanged{ZoneID: r.ZoneName, Reading: engine.Reading{
			CurrentTemperature:        r.CurrentTemperature,
			TargetTemperature:         r.TargetTemperature,
			TRVOpeningPercent:         r.TRVOpeningPercent,
			ExternalSensorTemperature: r.ExternalSensorTemperature,
		}})
		if err != nil {
			logger.L().Warnf("Dropping stored reading of zone `%s`: %v", r.ZoneName, err)
			continue
		}
		logger.L().Debugf("Loaded previous state from DB for zone %v", r.ZoneName)
	}

	enabled, err := parseSwitch(c.readValueWithDefault(ctx, valueEnabled, "true"))
	if err != nil {
		logger.L().Warnf("Stored enable flag: %v", err)
		enabled = true
	}

	deadline, err := parseDeadline(c.readValueWithDefault(ctx, valuePreHeatDeadline, ""), now)
	if err != nil {
		logger.L().Warnf("Stored pre-heat deadline: %v", err)
	}
	if !deadline.After(now) && c.cfg.PreHeat.EndTime != "" {
		deadline, _ = parseDeadline(c.cfg.PreHeat.EndTime, now)
	}

	c.pending = append(c.pending, c.engine.Resume(enabled, deadline, now))
	return nil
}

func (c *ThermoController) setupMQTTSubscriptions() {
	controlTopic := c.cfg.MQTTConfig.ControlTopic
	qos := *c.cfg.MQTTConfig.QoS
	for _, t := range []string{"enable", "preheat", "preheat_load", "log_level"} {
		c.mqtt.SafeSubscribe(controlTopic+"/"+t, qos, c.controlUpdateHandler)
	}
	for topic, zones := range c.zonesByTopic() {
		zones := zones
		c.mqtt.SafeSubscribe(topic, qos, func(client mqtt.Client, message mqtt.Message) {
			for _, zone := range zones {
				zone.readingHandler(client, message)
			}
		})
	}
}

// zonesByTopic groups zones by reading topic. The client keeps one handler
// per topic, so zones sharing a sensor are served by a single subscription.
func (c *ThermoController) zonesByTopic() map[string][]*ZoneController {
	names := make([]string, 0, len(c.zones))
	for name := range c.zones {
		names = append(names, name)
	}
	sort.Strings(names)

	byTopic := make(map[string][]*ZoneController)
	for _, name := range names {
		zone := c.zones[name]
		for _, topic := range zone.Topics() {
			byTopic[topic] = append(byTopic[topic], zone)
		}
	}
	return byTopic
}

// Run subscribes and processes events until ctx is done. Exactly one pass
// runs at a time.
func (c *ThermoController) Run(ctx context.Context) {
	c.setupMQTTSubscriptions()
	c.publishActive()
	for _, out := range c.pending {
		c.publish(out, 0)
	}
	c.pending = nil

	ticker := time.NewTicker(*c.cfg.Controller.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.L().Info("Decision loop stopped")
			return
		case ev := <-c.events:
			c.handleEvent(ctx, ev)
		case req := <-c.control:
			c.handleControl(ctx, req)
		case <-ticker.C:
			start := time.Now()
			out := c.engine.Tick(c.now())
			c.publish(out, time.Since(start))
		}
	}
}

func (c *ThermoController) handleEvent(ctx context.Context, ev engine.ZoneStateChanged) {
	start := time.Now()
	out, err := c.engine.Handle(ev, c.now())
	if err != nil {
		logger.L().Warnf("Rejected reading for zone `%s`: %v", ev.ZoneID, err)
		c.metrics.RejectedEvent(err)
		return
	}
	c.publish(out, time.Since(start))

	if err := c.queries.UpsertZoneReading(ctx, db.ZoneReading{
		ZoneName:                  ev.ZoneID,
		CurrentTemperature:        ev.CurrentTemperature,
		TargetTemperature:         ev.TargetTemperature,
		TRVOpeningPercent:         ev.TRVOpeningPercent,
		ExternalSensorTemperature: ev.ExternalSensorTemperature,
	}); err != nil {
		logger.L().Error(err)
	}
}

func (c *ThermoController) controlUpdateHandler(_ mqtt.Client, message mqtt.Message) {
	topic := lastTopicSegment(message.Topic())
	logger.L().Infof("main: Got MQTT control request: %v : %v", topic, string(message.Payload()))
	c.control <- controlRequest{topic: topic, payload: string(message.Payload())}
}

func (c *ThermoController) handleControl(ctx context.Context, req controlRequest) {
	now := c.now()
	start := time.Now()

	switch req.topic {
	case "enable":
		enabled, err := parseSwitch(req.payload)
		if err != nil {
			logger.L().Warnf("Invalid value for enable: %v", err)
			return
		}
		out := c.engine.SetEnabled(enabled, now)
		c.writeValue(ctx, valueEnabled, strconv.FormatBool(enabled))
		c.publishActive()
		c.publish(out, time.Since(start))

	case "preheat":
		deadline, err := parseDeadline(req.payload, now)
		if err != nil {
			logger.L().Warn(err)
			return
		}
		if deadline.IsZero() {
			if err := c.queries.DeleteControllerValue(ctx, valuePreHeatDeadline); err != nil {
				logger.L().Error(err)
			}
			c.publish(c.engine.DeactivatePreHeat(now), time.Since(start))
			return
		}
		if !deadline.After(now) {
			logger.L().Warnf("Pre-heat deadline %v is in the past", deadline.Format(time.RFC3339))
			return
		}
		out := c.engine.SchedulePreHeat(deadline, now)
		c.writeValue(ctx, valuePreHeatDeadline, deadline.Format(time.RFC3339))
		c.publish(out, time.Since(start))

	case "preheat_load":
		if strings.EqualFold(strings.TrimSpace(req.payload), "off") {
			c.publish(c.engine.DeactivatePreHeat(now), time.Since(start))
			return
		}
		estimate, err := strconv.ParseFloat(strings.TrimSpace(req.payload), 64)
		if err != nil {
			logger.L().Warnf("Invalid pre-heat load `%s`", req.payload)
			return
		}
		if estimate == 0 {
			c.publish(c.engine.DeactivatePreHeat(now), time.Since(start))
			return
		}
		out, err := c.engine.ActivatePreHeat(estimate, now)
		if err != nil {
			logger.L().Warnf("Rejected pre-heat load: %v", err)
			c.metrics.RejectedEvent(err)
			return
		}
		c.publish(out, time.Since(start))

	case "log_level":
		if err := logger.SetLogLevelString(req.payload); err != nil {
			logger.L().Error(err)
			return
		}
		logger.L().Infof("Updated loglevel to `%v`", logger.Level().String())

	default:
		logger.L().Errorf("Unknown control topic: %s", req.topic)
	}
}

// publish sends the commands of one pass. Transport failures are logged by
// the publishers and never reach the loop.
func (c *ThermoController) publish(out engine.Output, took time.Duration) {
	if out.Boiler != nil {
		c.boiler.Update(*out.Boiler)
	}
	for _, o := range out.Offsets {
		if zone, ok := c.zones[o.ZoneID]; ok {
			zone.PublishOffset(o.Offset)
		}
	}
	for _, d := range out.Discharges {
		if zone, ok := c.zones[d.ZoneID]; ok {
			zone.PublishDischarge(d.DischargeOn)
		}
	}

	state := c.engine.State()
	c.metrics.ObservePass(state, took)
	if !out.Empty() {
		c.publishDecision(out.Decision)
	}
}

func (c *ThermoController) publishDecision(d engine.AggregateDecision) {
	payload, err := json.Marshal(d)
	if err != nil {
		logger.L().Error(err)
		return
	}
	c.mqtt.SafePublish(c.cfg.MQTTConfig.ControlTopic+"/decision", *c.cfg.MQTTConfig.QoS, false, payload)
}

func (c *ThermoController) publishActive() {
	c.mqtt.SafePublish(
		c.cfg.MQTTConfig.ControlTopic+"/active", *c.cfg.MQTTConfig.QoS, true, formatSwitch(c.engine.Enabled()),
	)
}

func (c *ThermoController) writeValue(ctx context.Context, name, value string) {
	if err := c.queries.UpsertControllerValue(ctx, db.UpsertControllerValueParams{Name: name, Value: value}); err != nil {
		logger.L().Error(err)
	}
}

func (c *ThermoController) readValueWithDefault(ctx context.Context, name string, defValue string) string {
	val, err := c.queries.GetControllerValue(ctx, name)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.L().Error(err)
		}
		return defValue
	}
	return val
}
