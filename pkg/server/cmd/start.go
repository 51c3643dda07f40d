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

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dnote/herplog/pkg/log"
	"github.com/dnote/herplog/pkg/server/app"
	"github.com/dnote/herplog/pkg/server/buildinfo"
	"github.com/dnote/herplog/pkg/server/config"
	"github.com/dnote/herplog/pkg/server/controllers"
	"github.com/pkg/errors"
)

// shutdownTimeout is how long the requests in progress are given to finish
const shutdownTimeout = 10 * time.Second

func startCmd(args []string) {
	fs := setupFlagSet("start", "herplog-server start")

	port := fs.String("port", "", "Server port (env: PORT, default: 3001)")
	dbPath, dbURL := dbFlags(fs)
	apiKey := fs.String("apiKey", "", "API key required from the clients, no authentication if empty (env: API_KEY)")
	rateLimit := fs.Int("rateLimit", -1, "Requests per second accepted from one IP, 0 to disable (env: RATE_LIMIT_PER_SECOND, default: 50)")
	logLevel := fs.String("logLevel", "", "Log level: debug, info, warn, or error (env: LOG_LEVEL, default: info)")

	fs.Parse(args)

	cfg, err := config.New(config.Params{
		Port:               *port,
		DBPath:             *dbPath,
		DBURL:              *dbURL,
		APIKey:             *apiKey,
		RateLimitPerSecond: *rateLimit,
		RateLimitBurst:     -1,
		LogLevel:           *logLevel,
	})
	if err != nil {
		exitWithUsage(fs, err)
	}

	log.SetLevel(cfg.LogLevel)

	a, err := initApp(cfg)
	if err != nil {
		log.ErrorWrap(err, "initializing the app")
		os.Exit(1)
	}
	defer closeDB(a)

	if err := serve(a, cfg); err != nil {
		log.ErrorWrap(err, "server failed")
		os.Exit(1)
	}
}

func serve(a app.App, cfg config.Config) error {
	r, err := controllers.NewRouter(&a, controllers.NewRouteConfig(&a))
	if err != nil {
		return errors.Wrap(err, "initializing router")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.WithFields(log.Fields{
		"version":   buildinfo.Version,
		"port":      cfg.Port,
		"postgres":  cfg.UsesPostgres(),
		"auth":      cfg.APIKey != "",
		"rateLimit": cfg.RateLimitPerSecond,
	}).Info("herplog server starting")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutting down")
	}

	return nil
}
