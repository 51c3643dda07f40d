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
	"bytes"
	"testing"
	"time"

	"github.com/dnote/herplog/pkg/assert"
	"github.com/dnote/herplog/pkg/cli/context"
)

func TestWrite(t *testing.T) {
	ctx := context.HerplogCtx{
		Version:     "1.2.3",
		APIEndpoint: "http://127.0.0.1:3001/api",
		APIKey:      "secret",
		EntityTypes: []string{"reptile", "weight"},
		Sync: context.SyncSettings{
			Interval:   30 * time.Second,
			StatusAddr: "127.0.0.1:3002",
		},
	}

	t.Run("short", func(t *testing.T) {
		var buf bytes.Buffer
		write(&buf, ctx, false)

		assert.Equal(t, buf.String(), "herplog 1.2.3\n", "output mismatch")
	})

	t.Run("verbose", func(t *testing.T) {
		var buf bytes.Buffer
		write(&buf, ctx, true)

		expected := "herplog 1.2.3\n" +
			"endpoint:      http://127.0.0.1:3001/api\n" +
			"logged in:     yes\n" +
			"entity types:  reptile, weight\n" +
			"sync interval: 30s\n" +
			"status addr:   127.0.0.1:3002\n"
		assert.Equal(t, buf.String(), expected, "output mismatch")
	})
}
