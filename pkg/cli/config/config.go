/* Copyright 2025 Dnote Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dnote/herplog/pkg/cli/consts"
	"github.com/dnote/herplog/pkg/cli/context"
	"github.com/dnote/herplog/pkg/cli/validate"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	defaultSyncInterval     = "30s"
	defaultProbeInterval    = "10s"
	defaultRequestTimeout   = "15s"
	defaultWakePollInterval = "1s"
	defaultStatusAddr       = "127.0.0.1:3002"

	defaultBatchSize            = 10
	defaultMaxOperationsPerPass = 50
	defaultMaxRetries           = 5
	defaultMaxOperationRetries  = 5
	defaultBaseDelay            = "1s"
	defaultMaxDelay             = "5m"
)

// ErrNoEntityTypes is an error for a config without any entity type
var ErrNoEntityTypes = errors.New("at least one entity type must be configured")

// Config holds herplog configuration
type Config struct {
	APIEndpoint      string   `yaml:"apiEndpoint"`
	EntityTypes      []string `yaml:"entityTypes"`
	SyncInterval     string   `yaml:"syncInterval"`
	ProbeInterval    string   `yaml:"probeInterval"`
	RequestTimeout   string   `yaml:"requestTimeout"`
	WakePollInterval string   `yaml:"wakePollInterval"`
	StatusAddr       string   `yaml:"statusAddr"`

	BatchSize            int    `yaml:"batchSize,omitempty"`
	MaxOperationsPerPass int    `yaml:"maxOperationsPerPass,omitempty"`
	MaxRetries           int    `yaml:"maxRetries,omitempty"`
	MaxOperationRetries  int    `yaml:"maxOperationRetries,omitempty"`
	BaseDelay            string `yaml:"baseDelay,omitempty"`
	MaxDelay             string `yaml:"maxDelay,omitempty"`
}

// Default returns the config written on the first run
func Default(apiEndpoint string) Config {
	return Config{
		APIEndpoint:      apiEndpoint,
		EntityTypes:      consts.DefaultEntityTypes,
		SyncInterval:     defaultSyncInterval,
		ProbeInterval:    defaultProbeInterval,
		RequestTimeout:   defaultRequestTimeout,
		WakePollInterval: defaultWakePollInterval,
		StatusAddr:       defaultStatusAddr,

		BatchSize:            defaultBatchSize,
		MaxOperationsPerPass: defaultMaxOperationsPerPass,
		MaxRetries:           defaultMaxRetries,
		MaxOperationRetries:  defaultMaxOperationRetries,
		BaseDelay:            defaultBaseDelay,
		MaxDelay:             defaultMaxDelay,
	}
}

func parseDuration(name, val, defaultVal string) (time.Duration, error) {
	if val == "" {
		val = defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %s", name)
	}
	if d <= 0 {
		return 0, errors.Errorf("%s must be positive, got %s", name, val)
	}

	return d, nil
}

func parseCount(name string, val, defaultVal int) (int, error) {
	if val == 0 {
		return defaultVal, nil
	}
	if val < 0 {
		return 0, errors.Errorf("%s must be positive, got %d", name, val)
	}

	return val, nil
}

// SyncSettings validates the sync tunables. Missing values take defaults.
func (c Config) SyncSettings() (context.SyncSettings, error) {
	var ret context.SyncSettings
	var err error

	if ret.Interval, err = parseDuration("syncInterval", c.SyncInterval, defaultSyncInterval); err != nil {
		return ret, err
	}
	if ret.ProbeInterval, err = parseDuration("probeInterval", c.ProbeInterval, defaultProbeInterval); err != nil {
		return ret, err
	}
	if ret.RequestTimeout, err = parseDuration("requestTimeout", c.RequestTimeout, defaultRequestTimeout); err != nil {
		return ret, err
	}
	if ret.WakePollInterval, err = parseDuration("wakePollInterval", c.WakePollInterval, defaultWakePollInterval); err != nil {
		return ret, err
	}

	ret.StatusAddr = c.StatusAddr
	if ret.StatusAddr == "" {
		ret.StatusAddr = defaultStatusAddr
	}

	if ret.BatchSize, err = parseCount("batchSize", c.BatchSize, defaultBatchSize); err != nil {
		return ret, err
	}
	if ret.MaxOperationsPerPass, err = parseCount("maxOperationsPerPass", c.MaxOperationsPerPass, defaultMaxOperationsPerPass); err != nil {
		return ret, err
	}
	if ret.MaxRetries, err = parseCount("maxRetries", c.MaxRetries, defaultMaxRetries); err != nil {
		return ret, err
	}
	if ret.MaxOperationRetries, err = parseCount("maxOperationRetries", c.MaxOperationRetries, defaultMaxOperationRetries); err != nil {
		return ret, err
	}
	if ret.BaseDelay, err = parseDuration("baseDelay", c.BaseDelay, defaultBaseDelay); err != nil {
		return ret, err
	}
	if ret.MaxDelay, err = parseDuration("maxDelay", c.MaxDelay, defaultMaxDelay); err != nil {
		return ret, err
	}
	if ret.MaxDelay < ret.BaseDelay {
		return ret, errors.Errorf("maxDelay %s is shorter than baseDelay %s", ret.MaxDelay, ret.BaseDelay)
	}

	return ret, nil
}

// GetEntityTypes validates and returns the configured entity types
func (c Config) GetEntityTypes() ([]string, error) {
	if len(c.EntityTypes) == 0 {
		return nil, ErrNoEntityTypes
	}

	seen := map[string]bool{}
	ret := []string{}
	for _, t := range c.EntityTypes {
		if err := validate.EntityTypeName(t); err != nil {
			return nil, errors.Wrapf(err, "invalid entity type '%s'", t)
		}
		if seen[t] {
			continue
		}

		seen[t] = true
		ret = append(ret, t)
	}

	return ret, nil
}

// GetPath returns the path to the herplog config file
func GetPath(ctx context.HerplogCtx) string {
	return fmt.Sprintf("%s/%s/%s", ctx.Paths.Config, consts.HerplogDirName, consts.ConfigFilename)
}

// Read reads the config file
func Read(ctx context.HerplogCtx) (Config, error) {
	var ret Config

	configPath := GetPath(ctx)
	b, err := os.ReadFile(configPath)
	if err != nil {
		return ret, errors.Wrap(err, "reading config file")
	}

	err = yaml.Unmarshal(b, &ret)
	if err != nil {
		return ret, errors.Wrap(err, "unmarshalling config")
	}

	return ret, nil
}

// Write writes the config to the config file
func Write(ctx context.HerplogCtx, cf Config) error {
	path := GetPath(ctx)

	b, err := yaml.Marshal(cf)
	if err != nil {
		return errors.Wrap(err, "marshalling config into YAML")
	}

	err = os.WriteFile(path, b, 0644)
	if err != nil {
		return errors.Wrap(err, "writing the config file")
	}

	return nil
}
