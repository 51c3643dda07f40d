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

package cmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/dnote/herplog/pkg/clock"
	"github.com/dnote/herplog/pkg/server/app"
	"github.com/dnote/herplog/pkg/server/config"
	"github.com/dnote/herplog/pkg/server/database"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

func initDB(cfg config.Config) (*gorm.DB, error) {
	db := database.Open(cfg.DBPath, cfg.DBURL, cfg.LogLevel)
	database.InitSchema(db)
	if err := database.Migrate(db); err != nil {
		return nil, errors.Wrap(err, "migrating the database")
	}

	return db, nil
}

func initApp(cfg config.Config) (app.App, error) {
	db, err := initDB(cfg)
	if err != nil {
		return app.App{}, err
	}

	return app.App{
		DB:                 db,
		Clock:              clock.New(),
		APIKey:             cfg.APIKey,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
		Port:               cfg.Port,
		DBPath:             cfg.DBPath,
		DBURL:              cfg.DBURL,
	}, nil
}

// closeDB closes the connection of the app
func closeDB(a app.App) {
	sqlDB, err := a.DB.DB()
	if err == nil {
		sqlDB.Close()
	}
}

// printFlags prints flags with -- prefix for consistency with CLI
func printFlags(fs *flag.FlagSet) {
	fs.VisitAll(func(f *flag.Flag) {
		fmt.Printf("  --%s", f.Name)

		name, usage := flag.UnquoteUsage(f)
		if name != "" {
			fmt.Printf(" %s", name)
		}
		fmt.Println()

		if usage != "" {
			fmt.Printf("    \t%s", usage)
			if f.DefValue != "" && f.DefValue != "false" {
				fmt.Printf(" (default: %s)", f.DefValue)
			}
			fmt.Println()
		}
	})
}

// setupFlagSet creates a FlagSet with standard usage format
func setupFlagSet(name, usageCmd string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Printf(`Usage:
  %s [flags]

Flags:
`, usageCmd)
		printFlags(fs)
	}
	return fs
}

// exitWithUsage prints the error with the usage and exits
func exitWithUsage(fs *flag.FlagSet, err error) {
	fmt.Printf("Error: %s\n\n", err)
	fs.Usage()
	os.Exit(1)
}

// dbFlags registers the flags selecting the database
func dbFlags(fs *flag.FlagSet) (*string, *string) {
	dbPath := fs.String("dbPath", "", "Path to SQLite database file (env: DBPath, default: $XDG_DATA_HOME/herplog-server/server.db)")
	dbURL := fs.String("dbURL", "", "PostgreSQL url, used instead of dbPath if set (env: DBURL)")

	return dbPath, dbURL
}
