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
	"encoding/json"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

// errNoReading marks payloads a device sends when it has no value, such as
// `unavailable`. They are dropped without an error log.
var errNoReading = errors.New("no reading")

func isNoReading(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown", "unavailable", "none", "null", "nan":
		return true
	}
	return false
}

func extractF64PlainOrJson(message mqtt.Message, JSONEntry *string) (float64, error) {
	payload := string(message.Payload())
	if isNoReading(payload) {
		return 0, errNoReading
	}

	if JSONEntry == nil {
		v, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
		return v, errors.Wrapf(err, "parse error with : %v : %v", message.Topic(), payload)
	}

	var valMap map[string]interface{}
	if err := json.Unmarshal(message.Payload(), &valMap); err != nil {
		return 0, errors.Wrapf(err, "json unmarshal error with : %v : %v", message.Topic(), payload)
	}

	v, ok := valMap[*JSONEntry]
	if !ok {
		// Devices publish partial objects, a missing entry is not a failure.
		return 0, errNoReading
	}

	switch t := v.(type) {
	case float64:
		return t, nil
	case string:
		if isNoReading(t) {
			return 0, errNoReading
		}
		f, err := strconv.ParseFloat(t, 64)
		return f, errors.Wrapf(err, "cannot parse `%v` in : %v : %v", t, message.Topic(), payload)
	case nil:
		return 0, errNoReading
	}
	return 0, errors.Errorf("cannot cast `%v` to float64 in : %v : %v", v, message.Topic(), payload)
}

func parseSwitch(val string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "on", "1":
		return true, nil
	case "false", "off", "0":
		return false, nil
	}
	return false, errors.Errorf("invalid switch value `%s`", val)
}

func formatSwitch(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// parseDeadline accepts `HH:MM` (next occurrence after now, in now's
// location) or RFC3339. `off` and empty return the zero time.
func parseDeadline(val string, now time.Time) (time.Time, error) {
	val = strings.TrimSpace(val)
	if val == "" || strings.EqualFold(val, "off") {
		return time.Time{}, nil
	}
	if hm, err := time.Parse("15:04", val); err == nil {
		return nextOccurrence(hm.Hour(), hm.Minute(), now), nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid deadline `%s`, expected HH:MM or RFC3339", val)
	}
	return t, nil
}

func nextOccurrence(hour, minute int, now time.Time) time.Time {
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

func lastTopicSegment(topic string) string {
	return topic[strings.LastIndex(topic, "/")+1:]
}
