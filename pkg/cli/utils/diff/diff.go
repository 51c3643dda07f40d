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

// Package diff computes line-by-line diffs on top of
// github.com/sergi/go-diff/diffmatchpatch
package diff

import (
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Op is the kind of change of a line
type Op int

const (
	// Equal is a line present on both sides
	Equal Op = iota
	// Insert is a line present only on the new side
	Insert
	// Delete is a line present only on the old side
	Delete
)

// Line is one line of a diff, including its trailing newline if any
type Line struct {
	Op   Op
	Text string
}

func toOp(t diffmatchpatch.Operation) Op {
	switch t {
	case diffmatchpatch.DiffInsert:
		return Insert
	case diffmatchpatch.DiffDelete:
		return Delete
	}

	return Equal
}

// Lines computes the line-by-line diff between two strings
func Lines(before, after string) []Line {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = time.Hour

	a, b, arr := dmp.DiffLinesToRunes(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMainRunes(a, b, false), arr)

	ret := []Line{}
	for _, d := range diffs {
		for _, text := range strings.SplitAfter(d.Text, "\n") {
			if text == "" {
				continue
			}

			ret = append(ret, Line{Op: toOp(d.Type), Text: text})
		}
	}

	return ret
}

// Changed reports whether any line differs
func Changed(lines []Line) bool {
	for _, l := range lines {
		if l.Op != Equal {
			return true
		}
	}

	return false
}
