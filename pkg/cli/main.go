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

package main

import (
	"os"
	"strings"

	"github.com/dnote/herplog/pkg/cli/infra"
	"github.com/dnote/herplog/pkg/cli/log"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	// commands
	"github.com/dnote/herplog/pkg/cli/cmd/add"
	"github.com/dnote/herplog/pkg/cli/cmd/conflicts"
	"github.com/dnote/herplog/pkg/cli/cmd/daemon"
	"github.com/dnote/herplog/pkg/cli/cmd/edit"
	"github.com/dnote/herplog/pkg/cli/cmd/login"
	"github.com/dnote/herplog/pkg/cli/cmd/logout"
	"github.com/dnote/herplog/pkg/cli/cmd/ls"
	"github.com/dnote/herplog/pkg/cli/cmd/remove"
	"github.com/dnote/herplog/pkg/cli/cmd/retry"
	"github.com/dnote/herplog/pkg/cli/cmd/root"
	"github.com/dnote/herplog/pkg/cli/cmd/status"
	"github.com/dnote/herplog/pkg/cli/cmd/sync"
	"github.com/dnote/herplog/pkg/cli/cmd/version"
	"github.com/dnote/herplog/pkg/cli/cmd/view"
	"github.com/dnote/herplog/pkg/cli/cmd/wake"
)

// apiEndpoint and versionTag are populated during link time
var apiEndpoint string
var versionTag = "master"

// parseDBPath extracts the --dbPath flag value from the command line
// arguments wherever it appears. Returns an empty string if not found.
func parseDBPath(args []string) string {
	for i, arg := range args {
		if strings.HasPrefix(arg, "--dbPath=") {
			return strings.TrimPrefix(arg, "--dbPath=")
		}
		if arg == "--dbPath" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func main() {
	// --dbPath may follow the subcommand, which root.ParseFlags does not see
	dbPath := parseDBPath(os.Args[1:])

	ctx, err := infra.Init(versionTag, apiEndpoint, dbPath)
	if err != nil {
		panic(errors.Wrap(err, "initializing context"))
	}
	defer ctx.DB.Close()

	root.Register(add.NewCmd(*ctx))
	root.Register(edit.NewCmd(*ctx))
	root.Register(remove.NewCmd(*ctx))
	root.Register(ls.NewCmd(*ctx))
	root.Register(view.NewCmd(*ctx))
	root.Register(sync.NewCmd(*ctx))
	root.Register(status.NewCmd(*ctx))
	root.Register(retry.NewCmd(*ctx))
	root.Register(conflicts.NewCmd(*ctx))
	root.Register(daemon.NewCmd(*ctx))
	root.Register(wake.NewCmd(*ctx))
	root.Register(login.NewCmd(*ctx))
	root.Register(logout.NewCmd(*ctx))
	root.Register(version.NewCmd(*ctx))

	if err := root.Execute(); err != nil {
		log.Errorf("%s\n", err.Error())
		os.Exit(1)
	}
}
