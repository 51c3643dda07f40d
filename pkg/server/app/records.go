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

package app

import (
	"errors"
	"sync"
	"time"

	"github.com/dnote/herplog/pkg/jsonmerge"
	"github.com/dnote/herplog/pkg/server/database"
	pkgErrors "github.com/pkg/errors"
	"gorm.io/gorm"
)

const (
	// DefaultPerPage is the page size of the changes feed when none is given
	DefaultPerPage = 100
	// MaxPerPage is the largest page size of the changes feed
	MaxPerPage = 500
)

// writeMu serializes the writes so that records become visible in the
// order of their modified_at. Otherwise a reader could advance its
// checkpoint past a change that commits later with a smaller timestamp.
var writeMu sync.Mutex

// nextModifiedAt returns the timestamp of the next change. It is the current
// time in milliseconds unless a previous change already used it.
func (a *App) nextModifiedAt(tx *gorm.DB) (int64, error) {
	var last int64
	if err := tx.Raw("SELECT COALESCE(MAX(modified_at), 0) FROM records").Scan(&last).Error; err != nil {
		return 0, pkgErrors.Wrap(err, "reading the last modified_at")
	}

	now := a.Clock.Now().UnixMilli()
	if now <= last {
		return last + 1, nil
	}

	return now, nil
}

func (a *App) write(fn func(tx *gorm.DB) error) error {
	writeMu.Lock()
	defer writeMu.Unlock()

	return a.DB.Transaction(fn)
}

func findRecord(tx *gorm.DB, uuid string) (*database.Record, error) {
	var ret database.Record
	err := tx.Where("uuid = ?", uuid).First(&ret).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgErrors.Wrap(err, "finding record")
	}

	return &ret, nil
}

// seenKey reports whether a write with the idempotency key has been applied
func seenKey(tx *gorm.DB, key string) (bool, error) {
	if key == "" {
		return false, nil
	}

	var count int64
	if err := tx.Model(&database.IdempotencyKey{}).Where("key = ?", key).Count(&count).Error; err != nil {
		return false, pkgErrors.Wrap(err, "checking idempotency key")
	}

	return count > 0, nil
}

func rememberKey(tx *gorm.DB, key, recordUUID string) error {
	if key == "" {
		return nil
	}

	k := database.IdempotencyKey{Key: key, RecordUUID: recordUUID}
	if err := tx.Create(&k).Error; err != nil {
		return pkgErrors.Wrap(err, "saving idempotency key")
	}

	return nil
}

// CreateRecordParams is the parameters for creating a record
type CreateRecordParams struct {
	Type           string
	UUID           string
	Data           string
	IdempotencyKey string
}

// CreateRecord creates a record with the uuid chosen by the client. If the
// uuid already exists, the create is treated as a replay and the existing
// record is returned without any change. The returned boolean reports
// whether a record was created.
func (a *App) CreateRecord(p CreateRecordParams) (database.Record, bool, error) {
	if err := validateType(p.Type); err != nil {
		return database.Record{}, false, err
	}
	if err := validateUUID(p.UUID); err != nil {
		return database.Record{}, false, err
	}

	var ret database.Record
	var created bool

	err := a.write(func(tx *gorm.DB) error {
		existing, err := findRecord(tx, p.UUID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Type != p.Type {
				return ErrTypeMismatch
			}

			ret = *existing
			return nil
		}

		if err := validateData(p.Type, p.Data); err != nil {
			return err
		}

		modifiedAt, err := a.nextModifiedAt(tx)
		if err != nil {
			return err
		}

		ret = database.Record{
			UUID:       p.UUID,
			Type:       p.Type,
			Data:       p.Data,
			ModifiedAt: modifiedAt,
		}
		if err := tx.Create(&ret).Error; err != nil {
			return pkgErrors.Wrap(err, "inserting record")
		}
		if err := rememberKey(tx, p.IdempotencyKey, p.UUID); err != nil {
			return err
		}

		created = true
		return nil
	})

	return ret, created, err
}

// getLiveRecord returns the record of the given type that has not been
// deleted
func getLiveRecord(tx *gorm.DB, recordType, uuid string) (database.Record, error) {
	r, err := findRecord(tx, uuid)
	if err != nil {
		return database.Record{}, err
	}
	if r == nil || r.Type != recordType || r.Deleted {
		return database.Record{}, ErrNotFound
	}

	return *r, nil
}

// UpdateRecordParams is the parameters for updating a record
type UpdateRecordParams struct {
	Type string
	UUID string
	// Patch is a JSON object merged into the data. A null field removes
	// the key.
	Patch          string
	IdempotencyKey string
}

// UpdateRecord merges the patch into the data of a record. A retried update
// whose idempotency key has been seen returns the record as is.
func (a *App) UpdateRecord(p UpdateRecordParams) (database.Record, error) {
	if !jsonmerge.IsObject(p.Patch) {
		return database.Record{}, ErrDataNotObject
	}

	var ret database.Record

	err := a.write(func(tx *gorm.DB) error {
		r, err := getLiveRecord(tx, p.Type, p.UUID)
		if err != nil {
			return err
		}

		seen, err := seenKey(tx, p.IdempotencyKey)
		if err != nil {
			return err
		}
		if seen {
			ret = r
			return nil
		}

		data, err := jsonmerge.Merge(r.Data, p.Patch)
		if err != nil {
			return ErrDataNotObject
		}
		if err := validateData(r.Type, data); err != nil {
			return err
		}

		modifiedAt, err := a.nextModifiedAt(tx)
		if err != nil {
			return err
		}

		if err := tx.Model(&r).Updates(map[string]interface{}{
			"data":        data,
			"modified_at": modifiedAt,
		}).Error; err != nil {
			return pkgErrors.Wrap(err, "updating record")
		}
		if err := rememberKey(tx, p.IdempotencyKey, p.UUID); err != nil {
			return err
		}

		r.Data = data
		r.ModifiedAt = modifiedAt
		ret = r
		return nil
	})

	return ret, err
}

// DeleteRecord marks a record deleted and clears its data. Deleting a
// record that is already deleted returns the tombstone as is.
func (a *App) DeleteRecord(recordType, uuid string) (database.Record, error) {
	var ret database.Record

	err := a.write(func(tx *gorm.DB) error {
		r, err := findRecord(tx, uuid)
		if err != nil {
			return err
		}
		if r == nil || r.Type != recordType {
			return ErrNotFound
		}
		if r.Deleted {
			ret = *r
			return nil
		}

		modifiedAt, err := a.nextModifiedAt(tx)
		if err != nil {
			return err
		}

		if err := tx.Model(r).Updates(map[string]interface{}{
			"data":        "{}",
			"deleted":     true,
			"modified_at": modifiedAt,
		}).Error; err != nil {
			return pkgErrors.Wrap(err, "deleting record")
		}

		r.Data = "{}"
		r.Deleted = true
		r.ModifiedAt = modifiedAt
		ret = *r
		return nil
	})

	return ret, err
}

// GetRecord returns a record of the given type, including a tombstone
func (a *App) GetRecord(recordType, uuid string) (database.Record, error) {
	r, err := findRecord(a.DB, uuid)
	if err != nil {
		return database.Record{}, err
	}
	if r == nil || r.Type != recordType {
		return database.Record{}, ErrNotFound
	}

	return *r, nil
}

// GetChangesParams is the parameters for reading the changes feed
type GetChangesParams struct {
	Type string
	// Since is inclusive, in milliseconds
	Since   int64
	Page    int
	PerPage int
}

// GetChangesResult is a page of the changes feed
type GetChangesResult struct {
	Records    []database.Record
	ServerTime int64
	// NextPage is the page following this one, or 0 on the last page
	NextPage int
}

// paginate selects the page and the first record of the next page, which
// tells whether a next page exists
func paginate(conn *gorm.DB, page, perPage int) *gorm.DB {
	offset := perPage * (page - 1)

	return conn.Offset(offset).Limit(perPage + 1)
}

// GetChanges returns the records of a type modified at or after since,
// ordered by modified_at then uuid
func (a *App) GetChanges(p GetChangesParams) (GetChangesResult, error) {
	if err := validateType(p.Type); err != nil {
		return GetChangesResult{}, err
	}

	if p.Page == 0 {
		p.Page = 1
	}
	if p.PerPage == 0 {
		p.PerPage = DefaultPerPage
	}
	if p.Page < 0 || p.PerPage < 0 || p.Since < 0 {
		return GetChangesResult{}, ErrInvalidPagination
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}

	var ret GetChangesResult

	err := a.DB.Transaction(func(tx *gorm.DB) error {
		modifiedAt, err := a.nextModifiedAt(tx)
		if err != nil {
			return err
		}
		// no change can commit with a timestamp below the next one
		ret.ServerTime = modifiedAt - 1

		conn := tx.Where("type = ? AND modified_at >= ?", p.Type, p.Since).
			Order("modified_at ASC, uuid ASC")
		conn = paginate(conn, p.Page, p.PerPage)

		var records []database.Record
		if err := conn.Find(&records).Error; err != nil {
			return pkgErrors.Wrap(err, "finding records")
		}

		if len(records) > p.PerPage {
			records = records[:p.PerPage]
			ret.NextPage = p.Page + 1
		}

		ret.Records = records
		return nil
	})

	return ret, err
}

// PruneIdempotencyKeys deletes the idempotency keys saved before the given
// time and returns how many were deleted. A retry arriving after its key is
// pruned is applied again.
func (a *App) PruneIdempotencyKeys(before time.Time) (int64, error) {
	res := a.DB.Where("created_at < ?", before).Delete(&database.IdempotencyKey{})
	if err := res.Error; err != nil {
		return 0, pkgErrors.Wrap(err, "deleting idempotency keys")
	}

	return res.RowsAffected, nil
}
