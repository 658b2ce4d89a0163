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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/antst/mztrvc/internal"
	"github.com/antst/mztrvc/internal/config"
	"github.com/antst/mztrvc/internal/db"
	"github.com/antst/mztrvc/internal/logger"
	"github.com/antst/mztrvc/internal/metrics"
	"github.com/antst/mztrvc/internal/safe_mqtt"
	"github.com/antst/mztrvc/internal/web"
)

// Build version, overridden with flag during build.
var version = "devel"

func main() {
	logger.L().Warnf("Multi-zone TRV boiler controller, version: %+v", version)
	defer logger.Close()

	if err := run(); err != nil {
		logger.L().Error(err)
		logger.Close()
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queries, err := db.OpenDatabase(cfg.DBFile)
	if err != nil {
		return err
	}
	defer queries.Close()

	client, err := safe_mqtt.InitMQTTClient(ctx, safe_mqtt.Options{
		URL:      cfg.MQTTConfig.URL,
		ClientID: safe_mqtt.ClientID("mztrvc"),
		Username: cfg.MQTTConfig.Username,
		Password: cfg.MQTTConfig.Password,
	})
	if err != nil {
		return errors.WithMessage(err, "mqtt")
	}
	defer client.Close()

	m := metrics.New()
	c, err := internal.NewThermoController(cfg, client, queries, m)
	if err != nil {
		return err
	}
	if err := c.Restore(ctx); err != nil {
		return errors.WithMessage(err, "restore state")
	}

	if cfg.HTTP.Listen != "" {
		srv := web.NewServer(cfg.HTTP.Listen, c.Engine(), m)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.L().Error(err)
			}
		}()
	}

	c.Run(ctx)
	return nil
}
