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

package database

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dnote/herplog/pkg/log"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitSchema migrates database schema to reflect the latest model definition
func InitSchema(db *gorm.DB) {
	if err := db.AutoMigrate(
		&Record{},
		&IdempotencyKey{},
	); err != nil {
		panic(err)
	}
}

// getDBLogLevel maps the application log level to the level of the gorm
// logger. Queries are only logged in debug.
func getDBLogLevel(level string) logger.LogLevel {
	switch level {
	case log.LevelDebug:
		return logger.Info
	case log.LevelWarn:
		return logger.Warn
	case log.LevelError:
		return logger.Error
	default:
		return logger.Silent
	}
}

// isPostgresURL reports whether the given connection string points to a
// PostgreSQL database
func isPostgresURL(s string) bool {
	return strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://")
}

func getDialector(dbPath, dbURL string) (gorm.Dialector, error) {
	if dbURL != "" {
		if !isPostgresURL(dbURL) {
			return nil, errors.Errorf("unsupported database url %s", dbURL)
		}

		return postgres.Open(dbURL), nil
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating database directory at %s", dir)
	}

	return sqlite.Open(dbPath), nil
}

// Open initializes the database connection. It connects to PostgreSQL if a
// database url is given, and to the SQLite file at dbPath otherwise.
func Open(dbPath, dbURL, logLevel string) *gorm.DB {
	dialector, err := getDialector(dbPath, dbURL)
	if err != nil {
		panic(err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(getDBLogLevel(logLevel)),
	})
	if err != nil {
		panic(errors.Wrap(err, "opening database conection"))
	}

	return db
}
