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

package login

import (
	stdctx "context"
	"net/url"

	"github.com/dnote/herplog/pkg/cli/client"
	"github.com/dnote/herplog/pkg/cli/consts"
	"github.com/dnote/herplog/pkg/cli/context"
	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/infra"
	"github.com/dnote/herplog/pkg/cli/log"
	"github.com/dnote/herplog/pkg/cli/ui"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  herplog login`

var (
	apiEndpointFlag string
	apiKeyFlag      string
	skipVerifyFlag  bool
)

// NewCmd returns a new login command
func NewCmd(ctx context.HerplogCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "login",
		Short:   "Save the API key of the server",
		Example: example,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.StringVar(&apiEndpointFlag, "apiEndpoint", "", "API endpoint to connect to (defaults to value in config)")
	f.StringVar(&apiKeyFlag, "apiKey", "", "API key. prompted for if not given")
	f.BoolVar(&skipVerifyFlag, "skipVerify", false, "save the key without checking it against the server")

	return cmd
}

// Do verifies the API key unless skipVerify is set, and saves it
func Do(ctx context.HerplogCtx, apiKey string, skipVerify bool) error {
	if !skipVerify {
		ctx.APIKey = apiKey
		if err := infra.NewClient(ctx).VerifyKey(stdctx.Background(), ctx.EntityTypes[0]); err != nil {
			if ge, ok := client.AsGatewayError(err); ok && ge.StatusCode == 401 {
				return errors.New("the server rejected the API key")
			}

			return errors.Wrap(err, "verifying the API key")
		}
	}

	if err := database.UpsertSystem(ctx.DB, consts.SystemAPIKey, apiKey); err != nil {
		return errors.Wrap(err, "saving the API key")
	}

	return nil
}

// getServerDisplayURL returns the origin of the API endpoint
func getServerDisplayURL(ctx context.HerplogCtx) string {
	u, err := url.Parse(ctx.APIEndpoint)
	if err != nil {
		return ""
	}

	if u.Scheme == "" || u.Host == "" {
		return ""
	}

	return u.Scheme + "://" + u.Host
}

func newRun(ctx context.HerplogCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		if apiEndpointFlag != "" {
			ctx.APIEndpoint = apiEndpointFlag
		}

		log.Infof("logging in to %s\n", getServerDisplayURL(ctx))

		apiKey := apiKeyFlag
		if apiKey == "" {
			if err := ui.PromptPassword("API key", &apiKey); err != nil {
				return errors.Wrap(err, "getting the API key")
			}
		}
		if apiKey == "" {
			return errors.New("API key is empty")
		}

		if err := Do(ctx, apiKey, skipVerifyFlag); err != nil {
			return err
		}

		log.Success("logged in\n")
		infra.NotifyDaemon(ctx)

		return nil
	}
}
