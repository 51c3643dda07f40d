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
	"fmt"
	"os"
	"time"

	"github.com/dnote/herplog/pkg/server/config"
	"github.com/pkg/errors"
)

// defaultKeyRetention is how long idempotency keys are kept by default.
// Clients retry a write for far less than that.
const defaultKeyRetention = 30 * 24 * time.Hour

func pruneCmd(args []string) {
	fs := setupFlagSet("prune", "herplog-server prune")

	dbPath, dbURL := dbFlags(fs)
	olderThan := fs.Duration("olderThan", defaultKeyRetention, "Delete the idempotency keys older than this duration")

	fs.Parse(args)

	if *olderThan <= 0 {
		exitWithUsage(fs, errors.New("olderThan must be positive"))
	}

	cfg, err := config.New(config.Params{
		DBPath:             *dbPath,
		DBURL:              *dbURL,
		RateLimitPerSecond: -1,
		RateLimitBurst:     -1,
	})
	if err != nil {
		exitWithUsage(fs, err)
	}

	n, err := prune(cfg, *olderThan)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}

	fmt.Printf("Deleted %d idempotency keys\n", n)
}

func prune(cfg config.Config, olderThan time.Duration) (int64, error) {
	a, err := initApp(cfg)
	if err != nil {
		return 0, err
	}
	defer closeDB(a)

	before := a.Clock.Now().Add(-olderThan)

	n, err := a.PruneIdempotencyKeys(before)
	if err != nil {
		return 0, errors.Wrap(err, "pruning idempotency keys")
	}

	return n, nil
}
