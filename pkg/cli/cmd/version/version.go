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

package version

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dnote/herplog/pkg/cli/context"
	"github.com/spf13/cobra"
)

var verboseFlag bool

// NewCmd returns a new version command
func NewCmd(ctx context.HerplogCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of herplog",
		Long:  "Print the version number of herplog, and with --verbose the sync settings in use",
		Run: func(cmd *cobra.Command, args []string) {
			write(os.Stdout, ctx, verboseFlag)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&verboseFlag, "verbose", "v", false, "also print the endpoint, entity types and sync settings")

	return cmd
}

func write(w io.Writer, ctx context.HerplogCtx, verbose bool) {
	fmt.Fprintf(w, "herplog %s\n", ctx.Version)
	if !verbose {
		return
	}

	loggedIn := "no"
	if ctx.APIKey != "" {
		loggedIn = "yes"
	}

	fmt.Fprintf(w, "endpoint:      %s\n", ctx.APIEndpoint)
	fmt.Fprintf(w, "logged in:     %s\n", loggedIn)
	fmt.Fprintf(w, "entity types:  %s\n", strings.Join(ctx.EntityTypes, ", "))
	fmt.Fprintf(w, "sync interval: %s\n", ctx.Sync.Interval)
	fmt.Fprintf(w, "status addr:   %s\n", ctx.Sync.StatusAddr)
}
