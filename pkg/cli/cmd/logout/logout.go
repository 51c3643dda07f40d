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

package logout

import (
	"database/sql"

	"github.com/dnote/herplog/pkg/cli/consts"
	"github.com/dnote/herplog/pkg/cli/context"
	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/infra"
	"github.com/dnote/herplog/pkg/cli/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// ErrNotLoggedIn is an error for logging out when not logged in
var ErrNotLoggedIn = errors.New("not logged in")

var example = `
  herplog logout`

// NewCmd returns a new logout command
func NewCmd(ctx context.HerplogCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "logout",
		Short:   "Forget the API key of the server",
		Example: example,
		RunE:    newRun(ctx),
	}

	return cmd
}

// Do removes the stored API key. Local records and queued changes are kept
// and sync again after the next login.
func Do(ctx context.HerplogCtx) error {
	return database.RunInTx(ctx.DB, func(tx *database.DB) error {
		var key string
		err := database.GetSystem(tx, consts.SystemAPIKey, &key)
		if errors.Cause(err) == sql.ErrNoRows {
			return ErrNotLoggedIn
		} else if err != nil {
			return errors.Wrap(err, "getting the API key")
		}

		if err := database.DeleteSystem(tx, consts.SystemAPIKey); err != nil {
			return errors.Wrap(err, "deleting the API key")
		}

		return nil
	})
}

func newRun(ctx context.HerplogCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		err := Do(ctx)
		if err == ErrNotLoggedIn {
			log.Error("not logged in\n")
			return nil
		} else if err != nil {
			return errors.Wrap(err, "logging out")
		}

		log.Success("logged out\n")

		return nil
	}
}
