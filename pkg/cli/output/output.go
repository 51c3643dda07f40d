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

// Package output provides functions to print informations on the terminal
// in a consistent manner
package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/log"
	"github.com/dnote/herplog/pkg/cli/utils/diff"
	"github.com/fatih/color"
	"github.com/tidwall/pretty"
)

const timeLayout = "Jan 2, 2006 3:04pm (MST)"

// ShortIDLen is the length of the id prefix shown in listings
const ShortIDLen = 8

// ShortID returns the prefix of an id shown in listings
func ShortID(id string) string {
	if len(id) <= ShortIDLen {
		return id
	}

	return id[:ShortIDLen]
}

// JSON indents a JSON document, with colors when the terminal supports them
func JSON(data string) string {
	b := pretty.Pretty([]byte(data))
	if !color.NoColor {
		b = pretty.Color(b, nil)
	}

	return string(b)
}

// CompactJSON returns a JSON document on a single line
func CompactJSON(data string) string {
	return string(pretty.Ugly([]byte(data)))
}

// SyncStatus describes the sync status of a record
func SyncStatus(m database.Mirror) string {
	switch {
	case m.Conflicted:
		return "conflict"
	case m.PendingSync:
		return "pending"
	case m.ModifiedAt == 0:
		return "local"
	}

	return "synced"
}

// MirrorRow prints a record on one line
func MirrorRow(m database.Mirror) {
	status := SyncStatus(m)
	switch status {
	case "conflict":
		status = color.RedString(status)
	case "pending", "local":
		status = color.YellowString(status)
	}

	fmt.Printf("%s  %-10s %-8s %s\n", color.YellowString(ShortID(m.UUID)), m.EntityType, status, CompactJSON(m.Data))
}

// MirrorInfo prints a record
func MirrorInfo(m database.Mirror) {
	log.Infof("id: %s\n", m.UUID)
	log.Infof("type: %s\n", m.EntityType)
	log.Infof("status: %s\n", SyncStatus(m))
	if m.Conflicted {
		log.Infof("conflict: %s\n", m.ConflictReason)
	}
	if m.ModifiedAt != 0 {
		log.Infof("modified at: %s\n", time.UnixMilli(m.ModifiedAt).Format(timeLayout))
	}
	log.Infof("updated at: %s\n", time.Unix(0, m.UpdatedAt).Format(timeLayout))

	fmt.Printf("\n%s", JSON(m.Data))
}

// ConflictRow prints a conflict on one line
func ConflictRow(c database.Conflict) {
	fmt.Printf("%s  %-10s %-6s %s  %s\n", color.YellowString(ShortID(c.UUID)), c.EntityType, c.Operation, ShortID(c.EntityID), c.Reason)
}

// ConflictInfo prints a conflict
func ConflictInfo(c database.Conflict) {
	log.Infof("conflict id: %s\n", c.UUID)
	log.Infof("record: %s %s\n", c.EntityType, c.EntityID)
	log.Infof("operation: %s\n", c.Operation)
	log.Infof("status code: %d\n", c.StatusCode)
	log.Infof("reason: %s\n", c.Reason)
	log.Infof("detected at: %s\n", time.Unix(0, c.DetectedAt).Format(timeLayout))
}

// JSONDiff returns a line by line diff of two JSON documents after indenting
// them. Removed lines are prefixed with "-" and added lines with "+".
func JSONDiff(before, after string) string {
	b := string(pretty.Pretty([]byte(before)))
	a := string(pretty.Pretty([]byte(after)))

	var sb strings.Builder
	for _, l := range diff.Lines(b, a) {
		switch l.Op {
		case diff.Delete:
			sb.WriteString(color.RedString("- %s", l.Text))
		case diff.Insert:
			sb.WriteString(color.GreenString("+ %s", l.Text))
		default:
			sb.WriteString("  " + l.Text)
		}
	}

	return sb.String()
}
