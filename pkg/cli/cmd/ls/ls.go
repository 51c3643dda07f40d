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

package ls

import (
	"github.com/dnote/herplog/pkg/cli/context"
	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/infra"
	"github.com/dnote/herplog/pkg/cli/log"
	"github.com/dnote/herplog/pkg/cli/output"
	"github.com/dnote/herplog/pkg/cli/validate"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var allFlag bool

var example = `
 * List all records
 herplog ls

 * List the weights
 herplog ls weight`

func preRun(cmd *cobra.Command, args []string) error {
	if len(args) > 1 {
		return errors.New("Incorrect number of argument")
	}

	return nil
}

// NewCmd returns a new ls command
func NewCmd(ctx context.HerplogCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ls [type]",
		Aliases: []string{"l"},
		Short:   "List records",
		Example: example,
		PreRunE: preRun,
		RunE:    NewRun(ctx),
	}

	f := cmd.Flags()
	f.BoolVarP(&allFlag, "all", "a", false, "include records removed locally and not yet synced")

	return cmd
}

// NewRun returns a new run function for ls
func NewRun(ctx context.HerplogCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		p := database.ListMirrorsParams{IncludeDeleted: allFlag}
		if len(args) == 1 {
			if err := validate.EntityType(args[0], ctx.EntityTypes); err != nil {
				return errors.Wrapf(err, "invalid type '%s'", args[0])
			}
			p.EntityType = args[0]
		}

		mirrors, err := database.ListMirrors(ctx.DB, p)
		if err != nil {
			return errors.Wrap(err, "listing records")
		}

		if len(mirrors) == 0 {
			log.Info("no records\n")
			return nil
		}

		for _, m := range mirrors {
			output.MirrorRow(m)
		}

		return nil
	}
}
