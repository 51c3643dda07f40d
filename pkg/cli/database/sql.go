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

// Package database provides the local store of herplog. It holds the
// entity mirrors, the pending operation log, the surfaced conflicts and
// system key/value pairs in an embedded SQLite database.
package database

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// sqliteParams are appended to every data source name. WAL lets the
// daemon read while a CLI process writes; immediate transactions take the
// write lock up front so that read-then-write transactions cannot deadlock.
const sqliteParams = "_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"

// DB is a database connection that may be bound to a transaction.
// The same set of methods is available in and out of a transaction so
// that models can be written once.
type DB struct {
	Conn *sql.DB
	Tx   *sql.Tx
}

func getDSN(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}

	return dbPath + sep + sqliteParams
}

func isMemoryDSN(dbPath string) bool {
	return dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")
}

// Open opens a connection to the SQLite database at the given path
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", getDSN(dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "opening db connection")
	}

	// an in-memory database lives only as long as its connection
	if isMemoryDSN(dbPath) {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "connecting to %s", dbPath)
	}

	return &DB{Conn: conn}, nil
}

// Begin starts a transaction
func (d *DB) Begin() (*DB, error) {
	if d.Tx != nil {
		return nil, errors.New("a transaction is already in progress")
	}

	tx, err := d.Conn.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "beginning a transaction")
	}

	return &DB{Conn: d.Conn, Tx: tx}, nil
}

// Commit commits the transaction
func (d *DB) Commit() error {
	if d.Tx == nil {
		return errors.New("no transaction to commit")
	}

	return d.Tx.Commit()
}

// Rollback aborts the transaction. It is a no-op outside of a transaction.
func (d *DB) Rollback() error {
	if d.Tx == nil {
		return nil
	}

	return d.Tx.Rollback()
}

// Exec executes a query without returning any rows
func (d *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	if d.Tx != nil {
		return d.Tx.Exec(query, args...)
	}

	return d.Conn.Exec(query, args...)
}

// Query executes a query that returns rows
func (d *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	if d.Tx != nil {
		return d.Tx.Query(query, args...)
	}

	return d.Conn.Query(query, args...)
}

// QueryRow executes a query that is expected to return at most one row
func (d *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	if d.Tx != nil {
		return d.Tx.QueryRow(query, args...)
	}

	return d.Conn.QueryRow(query, args...)
}

// Close closes the underlying connection
func (d *DB) Close() error {
	return d.Conn.Close()
}

// RunInTx runs fn in a transaction and commits if fn succeeds. If db is
// already bound to a transaction, fn joins it and the caller remains
// responsible for committing.
func RunInTx(db *DB, fn func(tx *DB) error) error {
	if db.Tx != nil {
		return fn(db)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "committing a transaction")
	}

	return nil
}
