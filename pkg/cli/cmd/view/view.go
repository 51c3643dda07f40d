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

package view

import (
	"fmt"

	"github.com/dnote/herplog/pkg/cli/context"
	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/infra"
	"github.com/dnote/herplog/pkg/cli/output"
	"github.com/dnote/herplog/pkg/cli/queue"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
 * View a record
 herplog view 0f6a3c2e

 * Print the data only
 herplog view 0f6a3c2e --data-only
 `

var dataOnly bool

func preRun(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("Incorrect number of argument")
	}

	return nil
}

// NewCmd returns a new view command
func NewCmd(ctx context.HerplogCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "view <id>",
		Aliases: []string{"v"},
		Short:   "View a record",
		Example: example,
		RunE:    newRun(ctx),
		PreRunE: preRun,
	}

	f := cmd.Flags()
	f.BoolVarP(&dataOnly, "data-only", "", false, "print the data of the record only")

	return cmd
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

		if dataOnly {
			fmt.Print(output.JSON(m.Data))
			return nil
		}

		output.MirrorInfo(m)

		ops, err := queue.ListOutstanding(ctx.DB, id)
		if err != nil {
			return errors.Wrap(err, "listing outstanding operations")
		}
		if len(ops) > 0 {
			fmt.Printf("\n%d outstanding changes:\n", len(ops))
			for _, op := range ops {
				line := fmt.Sprintf("  %s %s", op.Operation, op.Status)
				if op.LastError != "" {
					line = fmt.Sprintf("%s (retry %d: %s)", line, op.RetryCount, op.LastError)
				}
				fmt.Println(line)
			}
		}

		return nil
	}
}
