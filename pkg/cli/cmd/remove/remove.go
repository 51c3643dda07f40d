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

package remove

import (
	"fmt"

	"github.com/dnote/herplog/pkg/cli/context"
	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/infra"
	"github.com/dnote/herplog/pkg/cli/log"
	"github.com/dnote/herplog/pkg/cli/output"
	"github.com/dnote/herplog/pkg/cli/records"
	"github.com/dnote/herplog/pkg/cli/ui"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var yesFlag bool

var example = `
  * Remove a record
  herplog remove 0f6a3c2e

  * Remove without confirmation
  herplog remove 0f6a3c2e -y`

// NewCmd returns a new remove command
func NewCmd(ctx context.HerplogCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <id>",
		Short:   "Remove a record",
		Aliases: []string{"rm", "d"},
		Example: example,
		PreRunE: preRun,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.BoolVarP(&yesFlag, "yes", "y", false, "remove without confirmation")

	return cmd
}

func preRun(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("Incorrect number of argument")
	}

	return nil
}

func newRun(ctx context.HerplogCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		id, err := database.ResolveMirrorID(ctx.DB, args[0])
		if err != nil {
			return errors.Wrapf(err, "finding record '%s'", args[0])
		}

		m, err := database.GetMirror(ctx.DB, id)
		if err != nil {
			return errors.Wrap(err, "getting the record")
		}

		if !yesFlag {
			output.MirrorInfo(m)
			fmt.Println("")

			ok, err := ui.Confirm(fmt.Sprintf("remove this %s?", m.EntityType), false)
			if err != nil {
				return errors.Wrap(err, "getting confirmation")
			}
			if !ok {
				log.Warnf("aborted by user\n")
				return nil
			}
		}

		w := records.New(ctx.DB, ctx.Clock, ctx.EntityTypes)
		if _, err := w.Delete(id); err != nil {
			return errors.Wrap(err, "Failed to remove the record")
		}

		log.Successf("removed %s %s\n", m.EntityType, output.ShortID(m.UUID))

		infra.NotifyDaemon(ctx)

		return nil
	}
}
