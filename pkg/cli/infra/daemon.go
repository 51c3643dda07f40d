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

package infra

import (
	stdctx "context"
	"time"

	"github.com/dnote/herplog/pkg/cli/context"
	"github.com/dnote/herplog/pkg/cli/log"
	"github.com/dnote/herplog/pkg/cli/statusserver"
)

const daemonTimeout = 2 * time.Second

// DaemonClient returns a client for the status server of the daemon
func DaemonClient(ctx context.HerplogCtx) *statusserver.Client {
	return statusserver.NewClient(ctx.Sync.StatusAddr)
}

// DaemonRunning reports whether a daemon answers on the status address
func DaemonRunning(ctx context.HerplogCtx) bool {
	c, cancel := stdctx.WithTimeout(stdctx.Background(), daemonTimeout)
	defer cancel()

	_, err := DaemonClient(ctx).GetState(c)

	return err == nil
}

// NotifyDaemon tells a running daemon that the queue changed so that it
// refreshes its state and requests a pass. It reports whether a daemon
// received the notification.
func NotifyDaemon(ctx context.HerplogCtx) bool {
	c, cancel := stdctx.WithTimeout(stdctx.Background(), daemonTimeout)
	defer cancel()

	dc := DaemonClient(ctx)
	if _, err := dc.Refresh(c); err != nil {
		log.Debug("daemon not notified: %s\n", err.Error())
		return false
	}
	if _, err := dc.TriggerSync(c); err != nil {
		log.Debug("daemon did not accept the sync request: %s\n", err.Error())
	}

	return true
}
