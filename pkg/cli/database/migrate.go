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
	"embed"

	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
)

// MigrationTableName is the name of the table that keeps track of applied migrations
const MigrationTableName = "schema_migrations"

//go:embed migrations/*.sql
var migrationFiles embed.FS

func getMigrationSource() migrate.MigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFiles,
		Root:       "migrations",
	}
}

// Migrate applies every migration that has not been applied yet and
// returns the number of migrations applied
func Migrate(db *DB) (int, error) {
	ms := migrate.MigrationSet{TableName: MigrationTableName}

	n, err := ms.Exec(db.Conn, "sqlite3", getMigrationSource(), migrate.Up)
	if err != nil {
		return n, errors.Wrap(err, "applying migrations")
	}

	return n, nil
}
