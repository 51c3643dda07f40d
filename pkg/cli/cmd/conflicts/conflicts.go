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

package conflicts

import (
	"fmt"

	"github.com/dnote/herplog/pkg/cli/context"
	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/infra"
	"github.com/dnote/herplog/pkg/cli/log"
	"github.com/dnote/herplog/pkg/cli/output"
	"github.com/dnote/herplog/pkg/cli/syncer"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
 * List the changes rejected by the server
 herplog conflicts

 * Show a rejected change and how it differs from the server copy
 herplog conflicts show 2b1e0c4a

 * Dismiss a rejected change
 herplog conflicts ack 2b1e0c4a`

// NewCmd returns a new conflicts command
func NewCmd(ctx context.HerplogCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conflicts",
		Aliases: []string{"c"},
		Short:   "List and acknowledge the changes rejected by the server",
		Example: example,
		RunE:    newListRun(ctx),
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "ls",
		Short:   "List the rejected changes",
		PreRunE: noArgs,
		RunE:    newListRun(ctx),
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "show <id>",
		Short:   "Show a rejected change",
		PreRunE: oneArg,
		RunE:    newShowRun(ctx),
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "ack <id>",
		Aliases: []string{"acknowledge"},
		Short:   "Dismiss a rejected change",
		PreRunE: oneArg,
		RunE:    newAckRun(ctx),
	})

	return cmd
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errors.New("Incorrect number of argument")
	}

	return nil
}

func oneArg(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("Incorrect number of argument")
	}

	return nil
}

func getConflict(db *database.DB, prefix string) (database.Conflict, error) {
	id, err := database.ResolveConflictID(db, prefix)
	if err != nil {
		return database.Conflict{}, errors.Wrapf(err, "finding conflict '%s'", prefix)
	}

	return database.GetConflict(db, id)
}

func newListRun(ctx context.HerplogCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		conflicts, err := database.ListConflicts(ctx.DB)
		if err != nil {
			return errors.Wrap(err, "listing conflicts")
		}

		if len(conflicts) == 0 {
			log.Info("no conflicts\n")
			return nil
		}

		for _, c := range conflicts {
			output.ConflictRow(c)
		}

		return nil
	}
}

func newShowRun(ctx context.HerplogCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		c, err := getConflict(ctx.DB, args[0])
		if err != nil {
			return err
		}

		output.ConflictInfo(c)

		m, err := database.GetMirror(ctx.DB, c.EntityID)
		if err == database.ErrMirrorNotFound || (err == nil && m.ServerData == "") {
			fmt.Printf("\nrejected payload:\n%s", output.JSON(c.Payload))
			return nil
		} else if err != nil {
			return errors.Wrap(err, "getting the record")
		}

		fmt.Printf("\nserver copy and rejected payload:\n%s", output.JSONDiff(m.ServerData, c.Payload))

		return nil
	}
}

func newAckRun(ctx context.HerplogCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		c, err := getConflict(ctx.DB, args[0])
		if err != nil {
			return err
		}

		if err := syncer.Acknowledge(ctx.DB, c.UUID); err != nil {
			return err
		}

		log.Successf("acknowledged conflict %s\n", output.ShortID(c.UUID))
		infra.NotifyDaemon(ctx)

		return nil
	}
}
