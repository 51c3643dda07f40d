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

package edit

import (
	"github.com/dnote/herplog/pkg/cli/cmd/add"
	"github.com/dnote/herplog/pkg/cli/context"
	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/infra"
	"github.com/dnote/herplog/pkg/cli/log"
	"github.com/dnote/herplog/pkg/cli/output"
	"github.com/dnote/herplog/pkg/cli/records"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var dataFlag string
var setFlags []string

var example = `
  * Change a field of a record by id prefix
  herplog edit 0f6a3c2e -s grams=1310

  * Merge a JSON patch. A null value removes the field
  herplog edit 0f6a3c2e -d '{"notes": null, "grams": 1290}'
`

// NewCmd returns a new edit command
func NewCmd(ctx context.HerplogCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "edit <id>",
		Short:   "Edit a record",
		Aliases: []string{"e"},
		Example: example,
		PreRunE: preRun,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.StringVarP(&dataFlag, "data", "d", "", "a JSON object merged into the record")
	f.StringArrayVarP(&setFlags, "set", "s", []string{}, "a field to change as key=value")

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

		patch, err := add.GetData(dataFlag, setFlags)
		if err != nil {
			return errors.Wrap(err, "getting data")
		}

		w := records.New(ctx.DB, ctx.Clock, ctx.EntityTypes)
		m, err := w.Update(id, patch)
		if err != nil {
			return errors.Wrap(err, "Failed to edit the record")
		}

		log.Successf("edited %s %s\n", m.EntityType, output.ShortID(m.UUID))
		output.MirrorInfo(m)

		infra.NotifyDaemon(ctx)

		return nil
	}
}
