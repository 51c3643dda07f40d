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

// Package consts provides definitions of constants
package consts

var (
	// HerplogDirName is the name of the directory containing herplog files
	HerplogDirName = "herplog"
	// HerplogDBFileName is a filename for the herplog SQLite database
	HerplogDBFileName = "herplog.db"
	// ConfigFilename is the name of the config file
	ConfigFilename = "herplogrc"
	// DaemonLogFilename is the name of the log file written by the daemon
	DaemonLogFilename = "daemon.log"
	// WakeDirName is the name of the spool directory for background wake markers
	WakeDirName = "wake"

	// SystemAPIKey is the key for the API key in the system table
	SystemAPIKey = "api_key"
	// SystemLastSyncAt is the local timestamp of the last fully successful sync
	SystemLastSyncAt = "last_sync_time"
	// SystemLastSyncError is the error message of the last failed sync
	SystemLastSyncError = "last_sync_error"
	// SystemCheckpointPrefix prefixes the per entity type pull checkpoint keys
	SystemCheckpointPrefix = "checkpoint."
)

// DefaultEntityTypes are the entity types synced when none are configured
var DefaultEntityTypes = []string{"reptile", "feeding", "weight", "shed"}
