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

package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dnote/herplog/pkg/assert"
)

func TestSetOutput(t *testing.T) {
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	defer SetOutput(prev)

	Successf("pushed %d operations\n", 3)
	Plain("done\n")

	got := buf.String()
	assert.Equal(t, strings.Contains(got, "pushed 3 operations"), true, "formatted message missing")
	assert.Equal(t, strings.HasSuffix(got, "  done\n"), true, "plain message should be indented")
}

func TestDebug(t *testing.T) {
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	defer SetOutput(prev)

	t.Setenv(debugEnvName, "")
	Debug("hidden %s\n", "message")
	assert.Equal(t, buf.Len(), 0, "debug should be silent by default")

	t.Setenv(debugEnvName, debugEnvValue)
	Debug("visible %s\n", "message")
	assert.Equal(t, strings.Contains(buf.String(), "visible message"), true, "debug message missing")
}
