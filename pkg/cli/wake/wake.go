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

// Package wake implements the background wake hook. A platform timer runs
// `herplog wake`, which leaves a marker file in the spool directory; the
// daemon consumes markers and requests a sync pass for each batch.
package wake

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dnote/herplog/pkg/clock"
	"github.com/dnote/herplog/pkg/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/radovskyb/watcher"
)

// MarkerExt is the extension of marker files
const MarkerExt = ".wake"

// DefaultPollInterval is the default interval at which the spool directory
// is scanned
const DefaultPollInterval = time.Second

// Post writes a marker into the spool directory and returns its path
func Post(dir string, c clock.Clock) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "creating the spool directory")
	}

	name := fmt.Sprintf("%d-%s%s", c.Now().UnixNano(), uuid.New().String(), MarkerExt)
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, nil, 0644); err != nil {
		return "", errors.Wrap(err, "writing the marker")
	}

	return path, nil
}

func isMarker(path string) bool {
	return strings.HasSuffix(path, MarkerExt)
}

// consume removes a marker. It reports false if the marker was already gone.
func consume(path string) (bool, error) {
	err := os.Remove(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}

	return false, errors.Wrapf(err, "removing %s", path)
}

// Drain removes every marker in the directory and returns how many it removed
func Drain(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "reading the spool directory")
	}

	count := 0
	for _, e := range entries {
		if e.IsDir() || !isMarker(e.Name()) {
			continue
		}

		ok, err := consume(filepath.Join(dir, e.Name()))
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}

	return count, nil
}

// Listener watches the spool directory for markers
type Listener struct {
	dir          string
	pollInterval time.Duration
	onWake       func()

	w  *watcher.Watcher
	wg sync.WaitGroup
}

// NewListener returns a new listener that calls onWake for consumed markers
func NewListener(dir string, pollInterval time.Duration, onWake func()) *Listener {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	return &Listener{
		dir:          dir,
		pollInterval: pollInterval,
		onWake:       onWake,
	}
}

// Start consumes the markers left while no listener was running, then
// watches the directory for new ones
func (l *Listener) Start() error {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return errors.Wrap(err, "creating the spool directory")
	}

	w := watcher.New()
	w.FilterOps(watcher.Create)
	if err := w.Add(l.dir); err != nil {
		return errors.Wrap(err, "watching the spool directory")
	}
	l.w = w

	n, err := Drain(l.dir)
	if err != nil {
		return err
	}
	if n > 0 {
		log.WithFields(log.Fields{"markers": n}).Info("consumed pending wake markers")
		l.onWake()
	}

	l.wg.Add(2)
	go l.loop()
	go func() {
		defer l.wg.Done()

		if err := w.Start(l.pollInterval); err != nil {
			log.ErrorWrap(err, "running the wake watcher")
		}
	}()

	w.Wait()

	return nil
}

func (l *Listener) loop() {
	defer l.wg.Done()

	for {
		select {
		case event := <-l.w.Event:
			if event.IsDir() || !isMarker(event.Path) {
				continue
			}

			ok, err := consume(event.Path)
			if err != nil {
				log.ErrorWrap(err, "consuming a wake marker")
				continue
			}
			if !ok {
				continue
			}

			log.WithFields(log.Fields{"marker": filepath.Base(event.Path)}).Info("wake marker received")
			l.onWake()
		case err := <-l.w.Error:
			log.ErrorWrap(err, "watching the spool directory")
		case <-l.w.Closed:
			return
		}
	}
}

// Stop stops watching the directory
func (l *Listener) Stop() {
	if l.w == nil {
		return
	}

	l.w.Close()
	l.wg.Wait()
}
