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

package context

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dnote/herplog/pkg/assert"
	"github.com/dnote/herplog/pkg/cli/consts"
)

func assertDirsExist(t *testing.T, paths Paths) {
	for _, base := range []string{paths.Config, paths.Data, paths.Cache, paths.State} {
		dir := filepath.Join(base, consts.HerplogDirName)
		info, err := os.Stat(dir)
		assert.Equal(t, err, nil, dir+" should exist")
		assert.Equal(t, info.IsDir(), true, dir+" should be a directory")
	}
}

func TestInitHerplogDirs(t *testing.T) {
	tmpDir := t.TempDir()

	paths := Paths{
		Config: filepath.Join(tmpDir, "config"),
		Data:   filepath.Join(tmpDir, "data"),
		Cache:  filepath.Join(tmpDir, "cache"),
		State:  filepath.Join(tmpDir, "state"),
	}

	err := InitHerplogDirs(paths)
	assert.Equal(t, err, nil, "InitHerplogDirs should succeed")
	assertDirsExist(t, paths)

	// idempotent
	err = InitHerplogDirs(paths)
	assert.Equal(t, err, nil, "InitHerplogDirs should succeed when dirs already exist")
	assertDirsExist(t, paths)
}

func TestStatePaths(t *testing.T) {
	paths := Paths{State: "/tmp/state"}

	assert.Equal(t, WakeDir(paths), "/tmp/state/herplog/wake", "wake dir mismatch")
	assert.Equal(t, DaemonLogPath(paths), "/tmp/state/herplog/daemon.log", "log path mismatch")
}

func TestRedact(t *testing.T) {
	ctx := HerplogCtx{APIKey: "secret", APIEndpoint: "http://localhost"}

	got := Redact(ctx)
	assert.Equal(t, got.APIKey, "1", "api key mismatch")
	assert.Equal(t, got.APIEndpoint, "http://localhost", "endpoint mismatch")
	assert.Equal(t, Redact(HerplogCtx{}).APIKey, "0", "empty api key mismatch")
}
