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

// Package infra provides operations and definitions for the
// local infrastructure for herplog
package infra

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/dnote/herplog/pkg/cli/client"
	"github.com/dnote/herplog/pkg/cli/config"
	"github.com/dnote/herplog/pkg/cli/consts"
	"github.com/dnote/herplog/pkg/cli/context"
	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/log"
	"github.com/dnote/herplog/pkg/cli/syncer"
	"github.com/dnote/herplog/pkg/cli/utils"
	"github.com/dnote/herplog/pkg/clock"
	"github.com/dnote/herplog/pkg/dirs"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	// DefaultAPIEndpoint is the default API endpoint used when none is configured
	DefaultAPIEndpoint = "http://localhost:3001/api"
	// APIKeyEnv is the environment variable that overrides the stored API key
	APIKeyEnv = "HERPLOG_API_KEY"
)

// RunEFunc is a function type of herplog commands
type RunEFunc func(*cobra.Command, []string) error

func getDBPath(paths context.Paths, customPath string) string {
	if customPath != "" {
		return customPath
	}

	return fmt.Sprintf("%s/%s/%s", paths.Data, consts.HerplogDirName, consts.HerplogDBFileName)
}

// newBaseCtx creates a minimal context with paths and database connection.
// This base context is used for file and database initialization before
// being enriched with config values by setupCtx.
func newBaseCtx(versionTag, customDBPath string) (context.HerplogCtx, error) {
	paths := context.Paths{
		Home:   dirs.Home,
		Config: dirs.ConfigHome,
		Data:   dirs.DataHome,
		Cache:  dirs.CacheHome,
		State:  dirs.StateHome,
	}

	if err := context.InitHerplogDirs(paths); err != nil {
		return context.HerplogCtx{}, errors.Wrap(err, "creating the herplog dirs")
	}

	dbPath := getDBPath(paths, customDBPath)

	db, err := database.Open(dbPath)
	if err != nil {
		return context.HerplogCtx{}, errors.Wrap(err, "connecting to db")
	}

	ctx := context.HerplogCtx{
		Paths:   paths,
		Version: versionTag,
		DB:      db,
	}

	return ctx, nil
}

// Init initializes the herplog environment and returns a new herplog context.
// apiEndpoint is used when creating a new config file, and overrides the
// configured endpoint when it is not empty.
func Init(versionTag, apiEndpoint, dbPath string) (*context.HerplogCtx, error) {
	ctx, err := newBaseCtx(versionTag, dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "initializing a context")
	}

	if err := initConfigFile(ctx, apiEndpoint); err != nil {
		ctx.DB.Close()
		return nil, errors.Wrap(err, "generating the config file")
	}

	n, err := database.Migrate(ctx.DB)
	if err != nil {
		ctx.DB.Close()
		return nil, errors.Wrap(err, "running migration")
	}
	if n > 0 {
		log.Debug("applied %d migrations\n", n)
	}

	ctx, err = setupCtx(ctx, apiEndpoint)
	if err != nil {
		ctx.DB.Close()
		return nil, errors.Wrap(err, "setting up the context")
	}

	log.Debug("context: %+v\n", context.Redact(ctx))

	return &ctx, nil
}

func getAPIKey(db *database.DB) (string, error) {
	if key := os.Getenv(APIKeyEnv); key != "" {
		return key, nil
	}

	var apiKey string
	err := database.GetSystem(db, consts.SystemAPIKey, &apiKey)
	if err != nil && err != sql.ErrNoRows {
		return "", errors.Wrap(err, "finding api key")
	}

	return apiKey, nil
}

// setupCtx enriches the base context with values from config file and database.
// This is called after files and database have been initialized.
func setupCtx(ctx context.HerplogCtx, apiEndpoint string) (context.HerplogCtx, error) {
	apiKey, err := getAPIKey(ctx.DB)
	if err != nil {
		return ctx, err
	}

	cf, err := config.Read(ctx)
	if err != nil {
		return ctx, errors.Wrap(err, "reading config")
	}

	entityTypes, err := cf.GetEntityTypes()
	if err != nil {
		return ctx, errors.Wrap(err, "reading entity types")
	}
	settings, err := cf.SyncSettings()
	if err != nil {
		return ctx, errors.Wrap(err, "reading sync settings")
	}

	endpoint := cf.APIEndpoint
	if apiEndpoint != "" {
		endpoint = apiEndpoint
	}

	ret := context.HerplogCtx{
		Paths:       ctx.Paths,
		Version:     ctx.Version,
		DB:          ctx.DB,
		APIKey:      apiKey,
		APIEndpoint: endpoint,
		EntityTypes: entityTypes,
		Sync:        settings,
		Clock:       clock.New(),
		HTTPClient:  client.NewRateLimitedHTTPClient(),
	}

	return ret, nil
}

// initConfigFile populates a new config file if it does not exist yet
func initConfigFile(ctx context.HerplogCtx, apiEndpoint string) error {
	path := config.GetPath(ctx)
	ok, err := utils.FileExists(path)
	if err != nil {
		return errors.Wrap(err, "checking if config exists")
	}
	if ok {
		return nil
	}

	endpoint := apiEndpoint
	if endpoint == "" {
		endpoint = DefaultAPIEndpoint
	}

	if err := config.Write(ctx, config.Default(endpoint)); err != nil {
		return errors.Wrap(err, "writing config")
	}

	return nil
}

// NewClient returns a client for the remote configured in the context
func NewClient(ctx context.HerplogCtx) *client.Client {
	return client.New(client.Params{
		Endpoint:       ctx.APIEndpoint,
		APIKey:         ctx.APIKey,
		Version:        ctx.Version,
		HTTPClient:     ctx.HTTPClient,
		RequestTimeout: ctx.Sync.RequestTimeout,
	})
}

// SyncConfig returns the syncer configuration from the settings of the
// context
func SyncConfig(ctx context.HerplogCtx) syncer.Config {
	return syncer.Config{
		EntityTypes:          ctx.EntityTypes,
		BatchSize:            ctx.Sync.BatchSize,
		MaxOperationsPerPass: ctx.Sync.MaxOperationsPerPass,
		MaxRetries:           ctx.Sync.MaxRetries,
		MaxOperationRetries:  ctx.Sync.MaxOperationRetries,
		BaseDelay:            ctx.Sync.BaseDelay,
		MaxDelay:             ctx.Sync.MaxDelay,
	}
}
