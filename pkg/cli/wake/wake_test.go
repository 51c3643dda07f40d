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

package wake

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dnote/herplog/pkg/assert"
	"github.com/dnote/herplog/pkg/clock"
	"github.com/pkg/errors"
	"go.uber.org/goleak"
)

func countMarkers(t *testing.T, dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(errors.Wrap(err, "reading dir"))
	}

	count := 0
	for _, e := range entries {
		if isMarker(e.Name()) {
			count++
		}
	}

	return count
}

func TestPost(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "wake")
	c := clock.NewMock()

	p1, err := Post(dir, c)
	if err != nil {
		t.Fatal(errors.Wrap(err, "posting"))
	}
	p2, err := Post(dir, c)
	if err != nil {
		t.Fatal(errors.Wrap(err, "posting"))
	}

	assert.NotEqual(t, p1, p2, "marker paths should be unique")
	assert.Equal(t, filepath.Dir(p1), dir, "marker dir mismatch")
	assert.Equal(t, countMarkers(t, dir), 2, "marker count mismatch")
}

func TestDrain(t *testing.T) {
	t.Run("markers", func(t *testing.T) {
		dir := t.TempDir()
		c := clock.NewMock()
		for i := 0; i < 3; i++ {
			if _, err := Post(dir, c); err != nil {
				t.Fatal(errors.Wrap(err, "posting"))
			}
		}
		if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
			t.Fatal(errors.Wrap(err, "writing file"))
		}

		n, err := Drain(dir)
		if err != nil {
			t.Fatal(errors.Wrap(err, "draining"))
		}

		assert.Equal(t, n, 3, "drained count mismatch")
		assert.Equal(t, countMarkers(t, dir), 0, "marker count mismatch")
		_, err = os.Stat(filepath.Join(dir, "notes.txt"))
		assert.Equal(t, err, nil, "other files should be kept")
	})

	t.Run("missing directory", func(t *testing.T) {
		n, err := Drain(filepath.Join(t.TempDir(), "missing"))
		if err != nil {
			t.Fatal(errors.Wrap(err, "draining"))
		}

		assert.Equal(t, n, 0, "drained count mismatch")
	})
}

func TestListener(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	c := clock.NewMock()

	// a marker left while no listener ran
	if _, err := Post(dir, c); err != nil {
		t.Fatal(errors.Wrap(err, "posting"))
	}

	woken := make(chan struct{}, 10)
	l := NewListener(dir, 10*time.Millisecond, func() {
		woken <- struct{}{}
	})
	if err := l.Start(); err != nil {
		t.Fatal(errors.Wrap(err, "starting"))
	}

	wait := func(msg string) {
		select {
		case <-woken:
		case <-time.After(5 * time.Second):
			t.Fatal(msg)
		}
	}

	wait("pending marker was not consumed")

	if _, err := Post(dir, c); err != nil {
		t.Fatal(errors.Wrap(err, "posting"))
	}
	wait("new marker was not consumed")

	l.Stop()

	assert.Equal(t, countMarkers(t, dir), 0, "marker count mismatch")
}
