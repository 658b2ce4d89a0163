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

package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type Queries struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Queries {
	return &Queries{db: db}
}

func (q *Queries) Close() error {
	return q.db.Close()
}

type UpsertControllerValueParams struct {
	Name  string `db:"name"`
	Value string `db:"value"`
}

const upsertControllerValue = `
INSERT INTO controller_value(name, value, updated_at)
VALUES (:name, :value, CURRENT_TIMESTAMP)
ON CONFLICT(name) DO UPDATE SET
    value=excluded.value,
    updated_at=excluded.updated_at`

func (q *Queries) UpsertControllerValue(ctx context.Context, arg UpsertControllerValueParams) error {
	_, err := q.db.NamedExecContext(ctx, upsertControllerValue, arg)
	return errors.Wrapf(err, "upsert controller value `%s`", arg.Name)
}

const getControllerValue = `SELECT value FROM controller_value WHERE name = ?`

// GetControllerValue returns sql.ErrNoRows (unwrapped) for unknown names.
func (q *Queries) GetControllerValue(ctx context.Context, name string) (string, error) {
	var value string
	err := q.db.GetContext(ctx, &value, getControllerValue, name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	return value, errors.Wrapf(err, "get controller value `%s`", name)
}

const deleteControllerValue = `DELETE FROM controller_value WHERE name = ?`

func (q *Queries) DeleteControllerValue(ctx context.Context, name string) error {
	_, err := q.db.ExecContext(ctx, deleteControllerValue, name)
	return errors.Wrapf(err, "delete controller value `%s`", name)
}

// ZoneReading is the last known raw reading of a zone. Nil columns were never
// received.
type ZoneReading struct {
	ZoneName                  string    `db:"zone_name"`
	CurrentTemperature        *float64  `db:"current_temperature"`
	TargetTemperature         *float64  `db:"target_temperature"`
	TRVOpeningPercent         *float64  `db:"trv_opening_percent"`
	ExternalSensorTemperature *float64  `db:"external_sensor_temperature"`
	UpdatedAt                 time.Time `db:"updated_at"`
}

// Partial updates keep the stored value of every column passed as NULL.
const upsertZoneReading = `
INSERT INTO zone_reading(zone_name, current_temperature, target_temperature, trv_opening_percent,
                         external_sensor_temperature, updated_at)
VALUES (:zone_name, :current_temperature, :target_temperature, :trv_opening_percent,
        :external_sensor_temperature, CURRENT_TIMESTAMP)
ON CONFLICT(zone_name) DO UPDATE SET
    current_temperature=COALESCE(excluded.current_temperature, current_temperature),
    target_temperature=COALESCE(excluded.target_temperature, target_temperature),
    trv_opening_percent=COALESCE(excluded.trv_opening_percent, trv_opening_percent),
    external_sensor_temperature=COALESCE(excluded.external_sensor_temperature, external_sensor_temperature),
    updated_at=excluded.updated_at`

func (q *Queries) UpsertZoneReading(ctx context.Context, arg ZoneReading) error {
	_, err := q.db.NamedExecContext(ctx, upsertZoneReading, arg)
	return errors.Wrapf(err, "upsert reading of zone `%s`", arg.ZoneName)
}

const listZoneReadings = `
SELECT zone_name, current_temperature, target_temperature, trv_opening_percent,
       external_sensor_temperature, updated_at
FROM zone_reading
ORDER BY zone_name`

func (q *Queries) ListZoneReadings(ctx context.Context) ([]ZoneReading, error) {
	var out []ZoneReading
	if err := q.db.SelectContext(ctx, &out, listZoneReadings); err != nil {
		return nil, errors.Wrap(err, "list zone readings")
	}
	return out, nil
}
