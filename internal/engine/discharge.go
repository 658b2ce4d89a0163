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
	"time"
)

const DefaultDischargeCooldown = 5 * time.Minute

type DischargePhase string

const (
	DischargeIdle     DischargePhase = "idle"
	DischargeActive   DischargePhase = "active"
	DischargeCooldown DischargePhase = "cooldown"
)

// DischargeCommand drives a discharge valve or pump.
type DischargeCommand struct {
	ZoneID      string `json:"zone_id"`
	DischargeOn bool   `json:"discharge_on"`
}

// DischargeState is the state machine of one discharge zone. ActiveSince is
// meaningful in Active, CooldownDeadline in Cooldown.
type DischargeState struct {
	ZoneID           string         `json:"zone_id"`
	Phase            DischargePhase `json:"phase"`
	ActiveSince      time.Time      `json:"active_since,omitempty"`
	CooldownDeadline time.Time      `json:"cooldown_deadline,omitempty"`
}

func (s DischargeState) DischargeOn() bool {
	return s.Phase != DischargeIdle
}

// PumpDischargeController keeps the discharge circuits open while the boiler
// runs and for a fixed dwell after it stops. Transitions are driven by the
// boiler decision and wall-clock time only.
type PumpDischargeController struct {
	cooldown    time.Duration
	states      map[string]*DischargeState
	order       []string
	boilerWasOn bool
}

func NewPumpDischargeController(zoneIDs []string, cooldown time.Duration) *PumpDischargeController {
	c := &PumpDischargeController{
		cooldown: cooldown,
		states:   make(map[string]*DischargeState, len(zoneIDs)),
	}
	for _, id := range zoneIDs {
		if _, ok := c.states[id]; ok {
			continue
		}
		c.states[id] = &DischargeState{ZoneID: id, Phase: DischargeIdle}
		c.order = append(c.order, id)
	}
	sort.Strings(c.order)
	return c
}

func (c *PumpDischargeController) Cooldown() time.Duration { return c.cooldown }

func (c *PumpDischargeController) IsDischargeZone(id string) bool {
	_, ok := c.states[id]
	return ok
}

// Excluded lists the zones kept out of demand aggregation. Discharge zones are
// excluded in every phase.
func (c *PumpDischargeController) Excluded() map[string]bool {
	ex := make(map[string]bool, len(c.states))
	for id := range c.states {
		ex[id] = true
	}
	return ex
}

// Evaluate advances every discharge state machine and returns the commands
// for outputs that changed.
func (c *PumpDischargeController) Evaluate(boilerOn bool, now time.Time) []DischargeCommand {
	var cmds []DischargeCommand
	rising := boilerOn && !c.boilerWasOn
	falling := !boilerOn && c.boilerWasOn
	c.boilerWasOn = boilerOn

	for _, id := range c.order {
		s := c.states[id]
		wasOn := s.DischargeOn()

		switch {
		case rising:
			s.Phase = DischargeActive
			s.ActiveSince = now
			s.CooldownDeadline = time.Time{}
		case falling && s.Phase == DischargeActive:
			c.enterCooldown(s, now)
		case s.Phase == DischargeCooldown:
			// The clock stepped backwards, the dwell restarts from now.
			if s.CooldownDeadline.Sub(now) > c.cooldown {
				s.CooldownDeadline = now.Add(c.cooldown)
			}
			if !now.Before(s.CooldownDeadline) {
				c.enterIdle(s)
			}
		}

		if on := s.DischargeOn(); on != wasOn {
			cmds = append(cmds, DischargeCommand{ZoneID: id, DischargeOn: on})
		}
	}
	return cmds
}

func (c *PumpDischargeController) enterCooldown(s *DischargeState, now time.Time) {
	s.ActiveSince = time.Time{}
	if c.cooldown <= 0 {
		c.enterIdle(s)
		return
	}
	s.Phase = DischargeCooldown
	s.CooldownDeadline = now.Add(c.cooldown)
}

func (c *PumpDischargeController) enterIdle(s *DischargeState) {
	s.Phase = DischargeIdle
	s.ActiveSince = time.Time{}
	s.CooldownDeadline = time.Time{}
}

// NextDeadline returns the earliest pending cooldown deadline.
func (c *PumpDischargeController) NextDeadline() (time.Time, bool) {
	var next time.Time
	for _, s := range c.states {
		if s.Phase != DischargeCooldown {
			continue
		}
		if next.IsZero() || s.CooldownDeadline.Before(next) {
			next = s.CooldownDeadline
		}
	}
	return next, !next.IsZero()
}

func (c *PumpDischargeController) States() []DischargeState {
	out := make([]DischargeState, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.states[id])
	}
	return out
}
