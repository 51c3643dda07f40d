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

package add

import (
	"os"

	"github.com/dnote/herplog/pkg/cli/context"
	"github.com/dnote/herplog/pkg/cli/infra"
	"github.com/dnote/herplog/pkg/cli/log"
	"github.com/dnote/herplog/pkg/cli/output"
	"github.com/dnote/herplog/pkg/cli/records"
	"github.com/dnote/herplog/pkg/cli/ui"
	"github.com/dnote/herplog/pkg/cli/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var dataFlag string
var setFlags []string

var example = `
 * Add a reptile
 herplog add reptile -s name=Monty -s species="ball python"

 * Add a weight with JSON data
 herplog add weight -d '{"reptile_id": "0f6a3c2e-6b1d-4d3e-9a55-3f3f4c1d2e11", "grams": 1250}'

 * Send stdin content as the data
 echo '{"reptile_id": "0f6a3c2e-6b1d-4d3e-9a55-3f3f4c1d2e11"}' | herplog add shed`

func preRun(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("Incorrect number of argument")
	}

	return nil
}

// NewCmd returns a new add command
func NewCmd(ctx context.HerplogCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "add <type>",
		Short:   "Add a new record",
		Aliases: []string{"a", "new"},
		Example: example,
		PreRunE: preRun,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.StringVarP(&dataFlag, "data", "d", "", "The data of the record as a JSON object")
	f.StringArrayVarP(&setFlags, "set", "s", []string{}, "A field of the record as key=value")

	return cmd
}

// GetData returns the data given by the data flag or the standard input,
// with the set flags applied on top
func GetData(data string, sets []string) (string, error) {
	if data == "" {
		// check for piped content
		fInfo, _ := os.Stdin.Stat()
		if fInfo != nil && fInfo.Mode()&os.ModeCharDevice == 0 {
			c, err := ui.ReadStdInput()
			if err != nil {
				return "", errors.Wrap(err, "Failed to get piped input")
			}
			data = c
		}
	}

	ret, err := utils.SetFields(data, sets)
	if err != nil {
		return "", err
	}

	return ret, nil
}

func newRun(ctx context.HerplogCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		entityType := args[0]

		data, err := GetData(dataFlag, setFlags)
		if err != nil {
			return errors.Wrap(err, "getting data")
		}

		w := records.New(ctx.DB, ctx.Clock, ctx.EntityTypes)
		m, err := w.Create(entityType, data)
		if err != nil {
			return errors.Wrap(err, "Failed to add the record")
		}

		log.Successf("added %s %s\n", entityType, output.ShortID(m.UUID))
		output.MirrorInfo(m)

		infra.NotifyDaemon(ctx)

		return nil
	}
}
