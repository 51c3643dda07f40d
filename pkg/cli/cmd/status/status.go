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

package status

import (
	stdctx "context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dnote/herplog/pkg/cli/context"
	"github.com/dnote/herplog/pkg/cli/infra"
	"github.com/dnote/herplog/pkg/cli/log"
	"github.com/dnote/herplog/pkg/cli/output"
	"github.com/dnote/herplog/pkg/cli/state"
	"github.com/dnote/herplog/pkg/cli/statusserver"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
 * Show the sync state
 herplog status

 * Print the sync state as JSON
 herplog status --json`

var jsonFlag bool

const probeTimeout = 3 * time.Second

// NewCmd returns a new status command
func NewCmd(ctx context.HerplogCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"st"},
		Short:   "Show the sync state",
		Example: example,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.BoolVarP(&jsonFlag, "json", "j", false, "print the state as JSON")

	return cmd
}

// localState derives the state from the local store when no daemon is running
func localState(ctx context.HerplogCtx) (statusserver.StateResp, error) {
	p := state.NewPublisher(ctx.DB, nil)
	if err := p.Refresh(); err != nil {
		return statusserver.StateResp{}, err
	}

	c, cancel := stdctx.WithTimeout(stdctx.Background(), probeTimeout)
	defer cancel()

	p.SetOnline(infra.NewClient(ctx).Health(c) == nil)

	s := p.State()

	return statusserver.StateResp{SyncState: s, Indicator: s.Indicator()}, nil
}

// Get returns the sync state from the daemon if it is running, or from the
// local store otherwise. It reports whether the state came from the daemon.
func Get(ctx context.HerplogCtx) (statusserver.StateResp, bool, error) {
	c, cancel := stdctx.WithTimeout(stdctx.Background(), probeTimeout)
	defer cancel()

	resp, err := infra.DaemonClient(ctx).GetState(c)
	if err == nil {
		return resp, true, nil
	}
	log.Debug("daemon not reachable: %s\n", err.Error())

	resp, err = localState(ctx)
	if err != nil {
		return resp, false, errors.Wrap(err, "deriving the local state")
	}

	return resp, false, nil
}

func indicatorText(i state.Indicator) string {
	switch i {
	case state.IndicatorSynced:
		return color.GreenString(string(i))
	case state.IndicatorSyncing:
		return color.CyanString(string(i))
	case state.IndicatorFailures:
		return color.RedString(string(i))
	default:
		return color.YellowString(string(i))
	}
}

// Print prints the state for users
func Print(s statusserver.StateResp, fromDaemon bool) {
	fmt.Printf("%s\n\n", indicatorText(s.Indicator))

	if fromDaemon {
		log.Plain("daemon: running\n")
	} else {
		log.Plain("daemon: not running\n")
	}
	log.Plainf("online: %t\n", s.IsOnline)
	log.Plainf("pending: %d\n", s.PendingCount)
	log.Plainf("failed: %d\n", s.FailedCount)
	log.Plainf("conflicts: %d\n", s.ConflictCount)

	if s.LastSyncTimestamp > 0 {
		log.Plainf("last sync: %s\n", time.Unix(s.LastSyncTimestamp, 0).Format(time.RFC1123))
	} else {
		log.Plain("last sync: never\n")
	}

	if s.SyncError != "" {
		log.Warnf("last sync failed: %s\n", s.SyncError)
	}
	if s.RetrySuppressed {
		log.Warnf("automatic retries are paused. run `herplog retry`\n")
	}
	for _, r := range s.Rejections {
		log.Warnf("%s\n", r)
	}
	if s.ConflictCount > 0 {
		log.Warnf("see `herplog conflicts`\n")
	}
}

func newRun(ctx context.HerplogCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		s, fromDaemon, err := Get(ctx)
		if err != nil {
			return err
		}

		if jsonFlag {
			b, err := json.Marshal(s)
			if err != nil {
				return errors.Wrap(err, "marshalling the state")
			}

			fmt.Print(output.JSON(string(b)))
			return nil
		}

		Print(s, fromDaemon)

		return nil
	}
}
