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

package sync

import (
	stdctx "context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dnote/herplog/pkg/cli/context"
	"github.com/dnote/herplog/pkg/cli/infra"
	"github.com/dnote/herplog/pkg/cli/log"
	"github.com/dnote/herplog/pkg/cli/queue"
	"github.com/dnote/herplog/pkg/cli/syncer"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  herplog sync`

var apiEndpointFlag string

// NewCmd returns a new sync command
func NewCmd(ctx context.HerplogCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sync",
		Aliases: []string{"s"},
		Short:   "Sync records with the server",
		Example: example,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.StringVar(&apiEndpointFlag, "apiEndpoint", "", "API endpoint to connect to (defaults to value in config)")

	return cmd
}

// NewSyncer returns a syncer for the remote configured in the context
func NewSyncer(ctx context.HerplogCtx) *syncer.Syncer {
	return syncer.New(ctx.DB, infra.NewClient(ctx), ctx.Clock, infra.SyncConfig(ctx))
}

// PrintResult prints the outcome of a pass
func PrintResult(result syncer.Result) {
	for _, r := range result.Rejections {
		log.Warnf("%s\n", r.Message())
	}

	log.Infof("pushed %d changes, merged %d remote changes\n", result.Pushed, result.Merged+result.Expunged)
	if result.Deferred > 0 {
		log.Infof("%d remote changes wait for local changes to sync\n", result.Deferred)
	}
	if len(result.Rejections) > 0 {
		log.Warnf("%d changes were rejected. see `herplog conflicts`\n", len(result.Rejections))
	}
}

// RunLocal runs one pass in this process. Only one process may push at a
// time, so callers check that no daemon is running.
func RunLocal(ctx context.HerplogCtx) (syncer.Result, error) {
	if _, err := queue.RecoverInFlight(ctx.DB); err != nil {
		return syncer.Result{}, errors.Wrap(err, "recovering in-flight operations")
	}

	c, stop := signal.NotifyContext(stdctx.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewSyncer(ctx).PerformFullSync(c)
}

func newRun(ctx context.HerplogCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		if apiEndpointFlag != "" {
			ctx.APIEndpoint = apiEndpointFlag
		}

		if infra.DaemonRunning(ctx) {
			resp, err := infra.DaemonClient(ctx).TriggerSync(stdctx.Background())
			if err != nil {
				return errors.Wrap(err, "requesting a sync from the daemon")
			}

			if resp.Started {
				log.Success("sync requested from the daemon. see `herplog status`\n")
			} else {
				log.Info("the daemon is already syncing or is offline. see `herplog status`\n")
			}

			return nil
		}

		result, err := RunLocal(ctx)
		PrintResult(result)
		if err != nil {
			return errors.Wrap(err, "syncing")
		}

		log.Success("synced\n")

		return nil
	}
}
