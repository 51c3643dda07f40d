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

package retry

import (
	stdctx "context"

	"github.com/dnote/herplog/pkg/cli/cmd/sync"
	"github.com/dnote/herplog/pkg/cli/context"
	"github.com/dnote/herplog/pkg/cli/infra"
	"github.com/dnote/herplog/pkg/cli/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  herplog retry`

// NewCmd returns a new retry command
func NewCmd(ctx context.HerplogCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "retry",
		Short:   "Retry the changes that failed to sync",
		Long:    "Reset the retry state of the failed changes and sync again. Automatic syncs resume afterwards.",
		Example: example,
		RunE:    newRun(ctx),
	}

	return cmd
}

func newRun(ctx context.HerplogCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		if infra.DaemonRunning(ctx) {
			resp, err := infra.DaemonClient(ctx).RetryFailed(stdctx.Background())
			if err != nil {
				return errors.Wrap(err, "requesting a retry from the daemon")
			}

			log.Successf("retrying %d failed changes in the daemon. see `herplog status`\n", resp.Reset)
			return nil
		}

		s := sync.NewSyncer(ctx)
		n, err := s.RetryFailed()
		if err != nil {
			return errors.Wrap(err, "resetting failed changes")
		}
		log.Infof("retrying %d failed changes\n", n)

		result, err := sync.RunLocal(ctx)
		sync.PrintResult(result)
		if err != nil {
			return errors.Wrap(err, "syncing")
		}

		log.Success("synced\n")

		return nil
	}
}
