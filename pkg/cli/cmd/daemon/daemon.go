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

package daemon

import (
	stdctx "context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dnote/herplog/pkg/cli/context"
	"github.com/dnote/herplog/pkg/cli/engine"
	"github.com/dnote/herplog/pkg/cli/infra"
	clilog "github.com/dnote/herplog/pkg/cli/log"
	"github.com/dnote/herplog/pkg/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var example = `
 * Run the background sync in the foreground of the terminal
 herplog daemon

 * Log to the terminal instead of the log file
 herplog daemon --stderr`

var (
	stderrFlag   bool
	logLevelFlag string
)

const shutdownTimeout = 10 * time.Second

// NewCmd returns a new daemon command
func NewCmd(ctx context.HerplogCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Run the background sync",
		Long:    "Sync the records in the background whenever they change, when the network comes back, and periodically, until interrupted.",
		Example: example,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.BoolVar(&stderrFlag, "stderr", false, "write logs to stderr instead of the log file")
	f.StringVar(&logLevelFlag, "logLevel", "info", "log level (debug, info, warn, error)")

	return cmd
}

func logWriter(ctx context.HerplogCtx) io.Writer {
	if stderrFlag {
		return os.Stderr
	}

	return &lumberjack.Logger{
		Filename:   context.DaemonLogPath(ctx.Paths),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

// NewEngine returns an engine for the remote and the settings of the context
func NewEngine(ctx context.HerplogCtx) *engine.Engine {
	return engine.New(engine.Params{
		DB:               ctx.DB,
		Gateway:          infra.NewClient(ctx),
		Clock:            ctx.Clock,
		Sync:             infra.SyncConfig(ctx),
		SyncInterval:     ctx.Sync.Interval,
		ProbeInterval:    ctx.Sync.ProbeInterval,
		WakeDir:          context.WakeDir(ctx.Paths),
		WakePollInterval: ctx.Sync.WakePollInterval,
		StatusAddr:       ctx.Sync.StatusAddr,
	})
}

func newRun(ctx context.HerplogCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		if !log.ValidLevel(logLevelFlag) {
			return errors.Errorf("invalid log level '%s'", logLevelFlag)
		}

		if infra.DaemonRunning(ctx) {
			return errors.Errorf("a daemon is already running on %s", ctx.Sync.StatusAddr)
		}

		w := logWriter(ctx)
		if c, ok := w.(io.Closer); ok {
			defer c.Close()
		}
		log.SetOutput(w)
		log.SetLevel(logLevelFlag)

		e := NewEngine(ctx)
		if err := e.Start(stdctx.Background()); err != nil {
			return errors.Wrap(err, "starting the daemon")
		}

		log.WithFields(log.Fields{
			"version":     ctx.Version,
			"apiEndpoint": ctx.APIEndpoint,
			"statusAddr":  e.StatusAddr(),
		}).Info("daemon started")
		clilog.Successf("daemon running. status on %s\n", e.StatusAddr())

		c, stop := signal.NotifyContext(stdctx.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// the pass in progress runs to completion, Stop waits for it
		<-c.Done()

		shutdownCtx, cancel := stdctx.WithTimeout(stdctx.Background(), shutdownTimeout)
		defer cancel()

		e.Stop(shutdownCtx)
		log.Info("daemon stopped")

		return nil
	}
}
