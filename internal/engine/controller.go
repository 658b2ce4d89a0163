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
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/antst/mztrvc/internal/thermo_model"
)

// BoilerCommand is the single output towards the heat source.
type BoilerCommand struct {
	On              bool    `json:"on"`
	FlowTemperature float64 `json:"flow_temperature"`
}

type Options struct {
	OffsetStep              float64
	DischargeCooldown       time.Duration
	PreHeatTuning           time.Duration
	ResetOffsetsOnBoilerOff bool
	Logger                  *zap.SugaredLogger
}

// Output carries the commands produced by one decision pass. Commands equal to
// the previous emission are left out.
type Output struct {
	Decision   AggregateDecision
	Boiler     *BoilerCommand
	Offsets    []OffsetCommand
	Discharges []DischargeCommand
}

func (o Output) Empty() bool {
	return o.Boiler == nil && len(o.Offsets) == 0 && len(o.Discharges) == 0
}

type ControllerState struct {
	Enabled           bool              `json:"enabled"`
	Zones             []ZoneSnapshot    `json:"zones"`
	Decision          AggregateDecision `json:"decision"`
	Boiler            *BoilerCommand    `json:"boiler,omitempty"`
	Discharge         []DischargeState  `json:"discharge"`
	DischargeCooldown float64           `json:"discharge_cooldown_seconds"`
	PreHeat           PreHeatState      `json:"preheat"`
}

// Controller is the composition point of the engine. Each public method runs
// at most one decision pass and passes never interleave.
type Controller struct {
	mu         sync.Mutex
	log        *zap.SugaredLogger
	opts       Options
	zones      map[string]*Zone
	order      []string
	aggregator DemandAggregator
	offsets    *OffsetController
	discharge  *PumpDischargeController
	preheat    *PreHeatController
	enabled    bool

	decision    AggregateDecision
	lastBoiler  *BoilerCommand
	lastOffsets map[string]float64
}

func NewController(zones []ZoneConfig, opts Options) (*Controller, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.PreHeatTuning <= 0 {
		opts.PreHeatTuning = thermo_model.DefaultTuning
	}

	c := &Controller{
		log:         opts.Logger,
		opts:        opts,
		zones:       make(map[string]*Zone, len(zones)),
		offsets:     NewOffsetController(opts.OffsetStep),
		preheat:     NewPreHeatController(),
		enabled:     true,
		lastOffsets: make(map[string]float64),
	}

	var dischargeIDs []string
	for _, cfg := range zones {
		if _, ok := c.zones[cfg.ID]; ok {
			return nil, &ConfigurationError{ZoneID: cfg.ID, Reason: "duplicate zone id"}
		}
		z, err := NewZone(cfg)
		if err != nil {
			return nil, err
		}
		c.zones[cfg.ID] = z
		c.order = append(c.order, cfg.ID)
		if cfg.IsDischargeZone {
			dischargeIDs = append(dischargeIDs, cfg.ID)
		}
	}
	sort.Strings(c.order)
	c.discharge = NewPumpDischargeController(dischargeIDs, opts.DischargeCooldown)

	return c, nil
}

// Handle applies one zone update and runs a decision pass. A rejected update
// produces no pass and no commands.
func (c *Controller) Handle(ev ZoneStateChanged, now time.Time) (Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	z, ok := c.zones[ev.ZoneID]
	if !ok {
		return Output{}, &ConfigurationError{ZoneID: ev.ZoneID, Reason: "unknown zone"}
	}
	if err := z.Update(ev.Reading); err != nil {
		return Output{}, err
	}
	return c.pass(now, z), nil
}

// Load applies a stored reading without running a pass, so no offset step or
// command results from it. Resume runs the first pass afterwards.
func (c *Controller) Load(ev ZoneStateChanged) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	z, ok := c.zones[ev.ZoneID]
	if !ok {
		return &ConfigurationError{ZoneID: ev.ZoneID, Reason: "unknown zone"}
	}
	return z.Update(ev.Reading)
}

// Resume applies the persisted enable flag and pre-heat deadline together
// and runs the first pass. A zero or past deadline schedules nothing.
func (c *Controller) Resume(enabled bool, preHeatDeadline, now time.Time) Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
	if preHeatDeadline.After(now) {
		c.preheat.Schedule(preHeatDeadline)
		c.log.Infof("Pre-heat scheduled until %v", preHeatDeadline.Format(time.RFC3339))
	}
	c.log.Infof("Controller resumed: enabled=%v", enabled)
	return c.pass(now, nil)
}

// Tick runs a pass without new readings, for timer-driven transitions.
func (c *Controller) Tick(now time.Time) Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pass(now, nil)
}

func (c *Controller) SetEnabled(enabled bool, now time.Time) Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled != enabled {
		c.log.Infof("Controller enabled: %v -> %v", c.enabled, enabled)
	}
	c.enabled = enabled
	return c.pass(now, nil)
}

func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// ActivatePreHeat forces the pre-heat floor from an externally computed
// estimate. It replaces any schedule.
func (c *Controller) ActivatePreHeat(estimate float64, now time.Time) (Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.preheat.Activate(estimate); err != nil {
		return Output{}, err
	}
	c.preheat.Unschedule()
	c.log.Infof("Pre-heat activated: estimate=%.2f forced flow=%.1f", estimate, ForcedFlowTemperature(estimate))
	return c.pass(now, nil), nil
}

// SchedulePreHeat keeps pre-heating active until deadline, with the estimate
// derived from the zones on every pass.
func (c *Controller) SchedulePreHeat(deadline, now time.Time) Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preheat.Schedule(deadline)
	c.log.Infof("Pre-heat scheduled until %v", deadline.Format(time.RFC3339))
	return c.pass(now, nil)
}

func (c *Controller) DeactivatePreHeat(now time.Time) Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.preheat.IsActive() {
		c.log.Info("Pre-heat deactivated")
	}
	c.preheat.Unschedule()
	c.preheat.Deactivate()
	return c.pass(now, nil)
}

// NextDeadline is the next time a pass must run without new readings.
func (c *Controller) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, ok := c.discharge.NextDeadline()
	if d, scheduled := c.preheat.Deadline(); scheduled && (!ok || d.Before(next)) {
		next, ok = d, true
	}
	return next, ok
}

func (c *Controller) ZoneState(id string) (ZoneSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zones[id]
	if !ok {
		return ZoneSnapshot{}, &ConfigurationError{ZoneID: id, Reason: "unknown zone"}
	}
	return z.Snapshot(), nil
}

func (c *Controller) ZoneIDs() []string {
	return append([]string(nil), c.order...)
}

func (c *Controller) State() ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := ControllerState{
		Enabled:           c.enabled,
		Zones:             c.snapshots(),
		Decision:          c.decision,
		Discharge:         c.discharge.States(),
		DischargeCooldown: c.discharge.Cooldown().Seconds(),
		PreHeat:           c.preheat.State(),
	}
	if c.lastBoiler != nil {
		b := *c.lastBoiler
		s.Boiler = &b
	}
	return s
}

func (c *Controller) snapshots() []ZoneSnapshot {
	out := make([]ZoneSnapshot, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.zones[id].Snapshot())
	}
	return out
}

// pass runs aggregation, pre-heat override, offsets and discharge in that
// order against one consistent view of the zones. Only the updated zone gets
// an offset step. Caller holds c.mu.
func (c *Controller) pass(now time.Time, updated *Zone) Output {
	view := c.snapshots()
	c.refreshPreHeat(view, now)

	decision := c.aggregator.Decide(view, c.discharge.Excluded())
	c.decision = decision

	on, flow := c.preheat.Override(decision.BoilerOn, decision.FlowTemperature)
	if !c.enabled {
		on, flow = false, MinFlowTemperature
	}
	if !on {
		flow = MinFlowTemperature
	}
	cmd := BoilerCommand{On: on, FlowTemperature: flow}
	wasOn := c.lastBoiler != nil && c.lastBoiler.On

	c.log.Debugf(
		"Decision pass: demand=%.3f contributing=%v low-aggregate=%.0f%% -> on=%v flow=%.1f",
		decision.DrivingDemandMetric, decision.ContributingZoneIDs, decision.LowPriorityAggregate, on, flow,
	)

	out := Output{Decision: decision}
	if c.lastBoiler == nil || *c.lastBoiler != cmd {
		c.log.Infof("Boiler command: on=%v flow=%.1f", cmd.On, cmd.FlowTemperature)
		out.Boiler = &cmd
		c.lastBoiler = &cmd
	}

	if c.enabled {
		resetAll := c.opts.ResetOffsetsOnBoilerOff && wasOn && !on
		for _, id := range c.order {
			if c.discharge.IsDischargeZone(id) {
				continue
			}
			var oc OffsetCommand
			switch z := c.zones[id]; {
			case resetAll:
				oc = c.offsets.Reset(z)
			case z == updated:
				oc = c.offsets.Apply(z)
			default:
				continue
			}
			if last, ok := c.lastOffsets[id]; !ok || last != oc.Offset {
				c.lastOffsets[id] = oc.Offset
				out.Offsets = append(out.Offsets, oc)
			}
		}
	}

	out.Discharges = c.discharge.Evaluate(on, now)
	for _, d := range out.Discharges {
		c.log.Infof("Discharge zone `%s`: discharge_on=%v", d.ZoneID, d.DischargeOn)
	}

	return out
}

func (c *Controller) refreshPreHeat(view []ZoneSnapshot, now time.Time) {
	deadline, ok := c.preheat.Deadline()
	if !ok {
		return
	}
	if !now.Before(deadline) {
		c.log.Infof("Pre-heat window ended at %v", deadline.Format(time.RFC3339))
		c.preheat.Unschedule()
		c.preheat.Deactivate()
		return
	}

	loads := make([]thermo_model.ZoneLoad, 0, len(view))
	for _, z := range view {
		if z.IsDischargeZone {
			continue
		}
		loads = append(loads, thermo_model.ZoneLoad{
			HighPriority:     z.IsHighPriority,
			TemperatureError: z.TemperatureError,
			FloorArea:        z.FloorArea,
		})
	}
	estimate := thermo_model.Estimate(thermo_model.ThermalLoad(loads), deadline.Sub(now), c.opts.PreHeatTuning)
	if err := c.preheat.Activate(estimate); err != nil {
		c.log.Warnf("Pre-heat estimate rejected: %v", err)
	}
}
