// Package sqlite implements ports.RecordProvider on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/aretw0/intake/pkg/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	key_slot TEXT NOT NULL,
	key      TEXT NOT NULL,
	data     TEXT NOT NULL,
	PRIMARY KEY (key_slot, key)
)`

// Provider stores one JSON document per record, indexed by key slot and key value.
type Provider struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. Use ":memory:" for a private
// in-memory database.
func Open(ctx context.Context, path string) (*Provider, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// Every pooled connection would see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}
	return &Provider{db: db}, nil
}

// Close releases the database.
func (p *Provider) Close() error {
	return p.db.Close()
}

// Put inserts or replaces the record under the value of its keySlot field.
func (p *Provider) Put(ctx context.Context, keySlot string, rec domain.Record) error {
	key, ok := rec[keySlot]
	if !ok || key == nil {
		return fmt.Errorf("record has no %q field", keySlot)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO records (key_slot, key, data) VALUES (?, ?, ?)`,
		keySlot, fmt.Sprint(key), string(data))
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Seed inserts every record in one transaction.
func (p *Provider) Seed(ctx context.Context, keySlot string, records []domain.Record) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }() // no-op after Commit

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO records (key_slot, key, data) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range records {
		key, ok := rec[keySlot]
		if !ok || key == nil {
			return fmt.Errorf("record has no %q field", keySlot)
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, keySlot, fmt.Sprint(key), string(data)); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}
	return tx.Commit()
}

// Lookup implements ports.RecordProvider.
func (p *Provider) Lookup(ctx context.Context, keySlot string, key domain.Value) (domain.Record, error) {
	var data string
	err := p.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE key_slot = ? AND key = ?`,
		keySlot, key.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %q: %w", keySlot, key, domain.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}

	var rec domain.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
