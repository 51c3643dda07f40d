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
	"testing"

	"github.com/dnote/herplog/pkg/cli/consts"
	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/clock"
	"github.com/pkg/errors"
)

// InitTestCtx initializes a test context with an in-memory database
// and a temporary directory for all paths
func InitTestCtx(t *testing.T) HerplogCtx {
	tmpDir := t.TempDir()
	paths := Paths{
		Home:   tmpDir,
		Cache:  tmpDir,
		Config: tmpDir,
		Data:   tmpDir,
		State:  tmpDir,
	}

	if err := InitHerplogDirs(paths); err != nil {
		t.Fatal(errors.Wrap(err, "creating test directories"))
	}

	return HerplogCtx{
		DB:          database.InitTestMemoryDB(t),
		Paths:       paths,
		EntityTypes: consts.DefaultEntityTypes,
		// mock clock to test times
		Clock: clock.NewMock(),
	}
}
