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

package records

import (
	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/queue"
	"github.com/dnote/herplog/pkg/jsonmerge"
	"github.com/pkg/errors"
)

// MergePatch applies the top-level fields of patch to the JSON object data.
// A null field removes the key. Nested objects are replaced, not merged.
func MergePatch(data, patch string) (string, error) {
	ret, err := jsonmerge.Merge(data, patch)
	if err != nil {
		return "", errors.Wrap(err, "merging patch")
	}

	return ret, nil
}

// Apply replays the intent of an operation onto a mirror
func Apply(m *database.Mirror, op queue.Operation) error {
	switch op.Operation {
	case queue.OpCreate:
		m.Data = op.Payload
		m.Deleted = false
	case queue.OpUpdate:
		data, err := MergePatch(m.Data, op.Payload)
		if err != nil {
			return errors.Wrapf(err, "replaying operation %s", op.UUID)
		}
		m.Data = data
	case queue.OpDelete:
		m.Deleted = true
	default:
		return errors.Errorf("unknown operation %s", op.Operation)
	}

	return nil
}
