// CLAUDE:SUMMARY Stores and loads the locator catalogue in SQLite: one shared document plus one row per profile.
package catalogue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Schema for the catalogue tables. Documents are YAML (JSON is accepted too).
const Schema = `
CREATE TABLE IF NOT EXISTS catalogue_shared (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	body       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS catalogue_profiles (
	profile    TEXT PRIMARY KEY,
	entry      TEXT NOT NULL,
	status     TEXT DEFAULT 'active',
	updated_at INTEGER NOT NULL
);
`

// Init creates the catalogue tables.
func Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("catalogue: init schema: %w", err)
	}
	return nil
}

// LoadDB reads the shared document and all active profile rows.
func LoadDB(ctx context.Context, db *sql.DB) (*Catalogue, error) {
	var body string
	err := db.QueryRowContext(ctx, `SELECT body FROM catalogue_shared WHERE id = 1`).Scan(&body)
	if err != nil {
		return nil, fmt.Errorf("catalogue: load shared: %w", err)
	}

	var c Catalogue
	if err := yaml.Unmarshal([]byte(body), &c); err != nil {
		return nil, fmt.Errorf("catalogue: decode shared: %w", err)
	}
	c.Entries = make(map[Profile]*Entry)

	rows, err := db.QueryContext(ctx, `
		SELECT profile, entry
		FROM catalogue_profiles
		WHERE status = 'active'
	`)
	if err != nil {
		return nil, fmt.Errorf("catalogue: load profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, doc string
		if err := rows.Scan(&name, &doc); err != nil {
			return nil, err
		}
		var e Entry
		if err := yaml.Unmarshal([]byte(doc), &e); err != nil {
			return nil, fmt.Errorf("catalogue: decode profile %s: %w", name, err)
		}
		c.Entries[Profile(name)] = &e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveDB writes c into the catalogue tables, replacing existing rows.
func SaveDB(ctx context.Context, db *sql.DB, c *Catalogue) error {
	shared := *c
	shared.Entries = nil
	body, err := yaml.Marshal(&shared)
	if err != nil {
		return fmt.Errorf("catalogue: encode shared: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO catalogue_shared (id, body, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, string(body), now); err != nil {
		return fmt.Errorf("catalogue: save shared: %w", err)
	}

	for _, p := range Profiles {
		e, ok := c.Entries[p]
		if !ok {
			continue
		}
		doc, err := yaml.Marshal(e)
		if err != nil {
			return fmt.Errorf("catalogue: encode profile %s: %w", p, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO catalogue_profiles (profile, entry, status, updated_at) VALUES (?, ?, 'active', ?)
			ON CONFLICT(profile) DO UPDATE SET entry = excluded.entry, status = 'active', updated_at = excluded.updated_at
		`, string(p), string(doc), now); err != nil {
			return fmt.Errorf("catalogue: save profile %s: %w", p, err)
		}
	}
	return tx.Commit()
}
