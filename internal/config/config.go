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

package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pborman/getopt/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/antst/mztrvc/internal/logger"
)

const (
	defaultMQTTURL      = "tcp://127.0.0.1:1883"
	defaultControlTopic = "mztrvc/control"
	defaultDBFile       = "~/.mztrvc.db"
	defaultConfigFile   = "config.yaml"
)

type Config struct {
	LogLevel   zapcore.Level          `yaml:"log_level"`
	MQTTConfig *MQTTConfig            `yaml:"mqtt"`
	DBFile     string                 `yaml:"db_file"`
	Boiler     *BoilerConfig          `yaml:"boiler"`
	Controller *ControllerConfig      `yaml:"controller"`
	Discharge  *DischargeConfig       `yaml:"discharge"`
	PreHeat    *PreHeatConfig         `yaml:"preheat"`
	HTTP       *HTTPConfig            `yaml:"http"`
	Zones      map[string]*ZoneConfig `yaml:"zones"`
}

func defConfig() *Config {
	return &Config{
		LogLevel:   zapcore.InfoLevel,
		MQTTConfig: NewMQTTConfig(),
		DBFile:     defaultDBFile,
		Boiler:     NewBoilerConfig(),
		Controller: NewControllerConfig(),
		Discharge:  NewDischargeConfig(),
		PreHeat:    NewPreHeatConfig(),
		HTTP:       NewHTTPConfig(),
		Zones:      make(map[string]*ZoneConfig),
	}
}

func GetPTR[T any](v T) *T {
	return &v
}

func prettyPrint(cfg *Config) {
	d, err := yaml.Marshal(cfg)
	if err != nil {
		logger.L().Error("Failed to marshal config for pretty print", err)
		return
	}
	logger.L().Debugf("--- Config ---\n%s\n\n", string(d))
}

// FillDefaults completes sections missing from the YAML file. A section that
// is present but partial is completed field by field.
func (cfg *Config) FillDefaults() {
	if cfg.MQTTConfig == nil {
		cfg.MQTTConfig = NewMQTTConfig()
	}
	cfg.MQTTConfig.FillDefaults()
	if cfg.Boiler == nil {
		cfg.Boiler = NewBoilerConfig()
	}
	if cfg.Controller == nil {
		cfg.Controller = NewControllerConfig()
	}
	cfg.Controller.FillDefaults()
	if cfg.Discharge == nil {
		cfg.Discharge = NewDischargeConfig()
	}
	cfg.Discharge.FillDefaults()
	if cfg.PreHeat == nil {
		cfg.PreHeat = NewPreHeatConfig()
	}
	cfg.PreHeat.FillDefaults()
	if cfg.HTTP == nil {
		cfg.HTTP = NewHTTPConfig()
	}
	if cfg.DBFile == "" {
		cfg.DBFile = defaultDBFile
	}
	if cfg.Zones == nil {
		cfg.Zones = make(map[string]*ZoneConfig)
	}
	for id, z := range cfg.Zones {
		if z == nil {
			z = NewZoneConfig()
			cfg.Zones[id] = z
		}
		z.FillDefaults()
	}
}

// Validate checks the values the engine would reject at construction time,
// so a bad file fails at startup with the offending key in the message.
func (cfg *Config) Validate() error {
	if len(cfg.Zones) == 0 {
		return errors.New("no zones configured")
	}
	if err := cfg.Controller.Validate(); err != nil {
		return errors.WithMessage(err, "controller")
	}
	if *cfg.Discharge.Cooldown < 0 {
		return errors.Errorf("discharge: negative cooldown %v", *cfg.Discharge.Cooldown)
	}
	if err := cfg.PreHeat.Validate(); err != nil {
		return errors.WithMessage(err, "preheat")
	}
	for id, z := range cfg.Zones {
		if err := z.Validate(); err != nil {
			return errors.WithMessagef(err, "zone `%s`", id)
		}
	}
	return nil
}

// Load reads and completes a config file without touching command-line flags.
func Load(configFile string) (*Config, error) {
	cfg := defConfig()
	if err := readFile(cfg, configFile); err != nil {
		return nil, err
	}
	cfg.FillDefaults()
	cfg.DBFile = expandHome(cfg.DBFile)
	return cfg, nil
}

func Get() *Config {
	logLevel := getopt.StringLong("log-level", 'l', "", "log levels: debug, info, warn, error, dpanic, panic, fatal")
	configFile := getopt.StringLong("config", 'c', defaultConfigFile, "config file pathname")
	dbFile := getopt.StringLong("db", 'd', "", "DB file pathname, overrides db_file")
	helpFlag := getopt.BoolLong("help", 'h', "display help")

	getopt.Parse()
	if *helpFlag {
		getopt.Usage()
		os.Exit(0)
	}

	cfg, err := Load(*configFile)
	if err != nil {
		logger.L().Fatalf("GetConfig: %v", err)
	}
	logger.L().Infof("Using config file `%v`", *configFile)

	if *dbFile != "" {
		cfg.DBFile = expandHome(*dbFile)
	}
	logger.L().Infof("Using DB file `%v`", cfg.DBFile)

	if *logLevel != "" {
		if err := cfg.LogLevel.Set(*logLevel); err != nil {
			logger.L().Errorf("Wrong log level `%v`: %v", *logLevel, err)
		}
	}
	logger.SetLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.L().Fatalf("Invalid config: %v", err)
	}

	prettyPrint(cfg)

	return cfg
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	return err == nil && !info.IsDir()
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func readFile(cfg *Config, configFileName string) error {
	if !fileExists(configFileName) {
		return nil
	}

	f, err := os.Open(configFileName)
	if err != nil {
		return errors.Wrap(err, "failed to open config file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return errors.Wrap(err, "failed to read config file")
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return errors.Wrap(err, "failed to unmarshal config")
		}
	}

	return nil
}
