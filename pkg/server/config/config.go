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
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dnote/herplog/pkg/dirs"
	"github.com/dnote/herplog/pkg/log"
	"github.com/pkg/errors"
)

const (
	// DefaultDBDir is the default directory name for the server data
	DefaultDBDir = "herplog-server"
	// DefaultDBFilename is the default database filename
	DefaultDBFilename = "server.db"
	// DefaultPort is the default port of the server
	DefaultPort = "3001"
	// DefaultRateLimitPerSecond is the default number of requests per second
	// accepted from a single IP
	DefaultRateLimitPerSecond = 50
	// DefaultRateLimitBurst is the default burst capacity of the rate limit
	DefaultRateLimitBurst = 100
)

var (
	// DefaultDBPath is the default path to the database file
	DefaultDBPath = filepath.Join(dirs.DataHome, DefaultDBDir, DefaultDBFilename)
)

var (
	// ErrDBMissingPath is an error for an incomplete configuration missing the database path
	ErrDBMissingPath = errors.New("DB Path is empty")
	// ErrDBURLInvalid is an error for a database url that is not a PostgreSQL url
	ErrDBURLInvalid = errors.New("Invalid DBURL")
	// ErrPortInvalid is an error for an incomplete configuration with invalid port
	ErrPortInvalid = errors.New("Invalid Port")
	// ErrLogLevelInvalid is an error for an unknown log level
	ErrLogLevelInvalid = errors.New("Invalid LogLevel")
	// ErrRateLimitInvalid is an error for a rate limit that is not a non-negative integer
	ErrRateLimitInvalid = errors.New("Invalid RateLimit")
)

// getOrEnv returns value if non-empty, otherwise env var, otherwise default
func getOrEnv(value, envKey, defaultVal string) string {
	if value != "" {
		return value
	}
	if env := os.Getenv(envKey); env != "" {
		return env
	}
	return defaultVal
}

// getIntOrEnv is getOrEnv for integers. A negative value means unset.
func getIntOrEnv(value int, envKey string, defaultVal int) (int, error) {
	if value >= 0 {
		return value, nil
	}

	env := os.Getenv(envKey)
	if env == "" {
		return defaultVal, nil
	}

	ret, err := strconv.Atoi(env)
	if err != nil || ret < 0 {
		return 0, errors.Wrapf(ErrRateLimitInvalid, "%s='%s'", envKey, env)
	}

	return ret, nil
}

// Config is an application configuration
type Config struct {
	Port   string
	DBPath string
	// DBURL is the url of a PostgreSQL database. It takes precedence over
	// DBPath.
	DBURL  string
	APIKey string
	// RateLimitPerSecond of zero disables the rate limit
	RateLimitPerSecond int
	RateLimitBurst     int
	LogLevel           string
}

// Params are the configuration parameters for creating a new Config
type Params struct {
	Port   string
	DBPath string
	DBURL  string
	APIKey string
	// RateLimitPerSecond and RateLimitBurst are read from the environment
	// when negative
	RateLimitPerSecond int
	RateLimitBurst     int
	LogLevel           string
}

// New constructs and returns a new validated config.
// Empty string params will fall back to environment variables and defaults.
func New(p Params) (Config, error) {
	perSecond, err := getIntOrEnv(p.RateLimitPerSecond, "RATE_LIMIT_PER_SECOND", DefaultRateLimitPerSecond)
	if err != nil {
		return Config{}, err
	}
	burst, err := getIntOrEnv(p.RateLimitBurst, "RATE_LIMIT_BURST", DefaultRateLimitBurst)
	if err != nil {
		return Config{}, err
	}

	c := Config{
		Port:               getOrEnv(p.Port, "PORT", DefaultPort),
		DBPath:             getOrEnv(p.DBPath, "DBPath", DefaultDBPath),
		DBURL:              getOrEnv(p.DBURL, "DBURL", ""),
		APIKey:             getOrEnv(p.APIKey, "API_KEY", ""),
		RateLimitPerSecond: perSecond,
		RateLimitBurst:     burst,
		LogLevel:           getOrEnv(p.LogLevel, "LOG_LEVEL", log.LevelInfo),
	}

	if err := validate(c); err != nil {
		return Config{}, err
	}

	return c, nil
}

// UsesPostgres reports whether the server stores its data in PostgreSQL
func (c Config) UsesPostgres() bool {
	return c.DBURL != ""
}

func validate(c Config) error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return errors.Wrapf(ErrPortInvalid, "'%s'", c.Port)
	}

	if c.DBURL != "" {
		if !strings.HasPrefix(c.DBURL, "postgres://") && !strings.HasPrefix(c.DBURL, "postgresql://") {
			return ErrDBURLInvalid
		}
	} else if c.DBPath == "" {
		return ErrDBMissingPath
	}

	if !log.ValidLevel(c.LogLevel) {
		return errors.Wrapf(ErrLogLevelInvalid, "'%s'", c.LogLevel)
	}

	return nil
}
