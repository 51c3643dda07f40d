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

package wake

import (
	"github.com/dnote/herplog/pkg/cli/context"
	"github.com/dnote/herplog/pkg/cli/infra"
	"github.com/dnote/herplog/pkg/cli/log"
	"github.com/dnote/herplog/pkg/cli/wake"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
 * Ask the daemon for a sync, for instance from a resume hook
 herplog wake`

// NewCmd returns a new wake command
func NewCmd(ctx context.HerplogCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "wake",
		Short:   "Leave a wake marker for the daemon",
		Long:    "Leave a marker that makes the daemon sync once it is running. It does not need the daemon to be reachable.",
		Example: example,
		RunE:    newRun(ctx),
	}

	return cmd
}

func newRun(ctx context.HerplogCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		path, err := wake.Post(context.WakeDir(ctx.Paths), ctx.Clock)
		if err != nil {
			return errors.Wrap(err, "posting a wake marker")
		}

		log.Debug("wake marker: %s\n", path)
		log.Success("wake marker left for the daemon\n")

		return nil
	}
}
