package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/manpreetbhatti/showroom/internal/catalog"
	"github.com/manpreetbhatti/showroom/internal/coords"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type Database struct {
	db *sql.DB
}

func New(dbPath string) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	// Pragmas go in the DSN so every pooled connection gets them
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", dbPath).Msg("database initialized")
	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS stores (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		background_image TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS models (
		store_id TEXT NOT NULL,
		id TEXT NOT NULL,
		ordinal INTEGER NOT NULL DEFAULT 0,
		url TEXT NOT NULL DEFAULT '',
		pos_x REAL NOT NULL,
		pos_y REAL NOT NULL,
		scale_width REAL NOT NULL,
		scale_height REAL NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (store_id, id),
		FOREIGN KEY (store_id) REFERENCES stores(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_models_store_ordinal ON models(store_id, ordinal);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Store operations

// CreateStore inserts a store and its models. Returns false if the ID is taken.
func (d *Database) CreateStore(ctx context.Context, store catalog.Store) (bool, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO stores (id, name, background_image) VALUES (?, ?, ?)",
		store.ID, store.Name, store.BackgroundImage,
	)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return false, err
	}

	for i, m := range store.Models {
		pos := coords.Clamp(m.Position)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO models (store_id, id, ordinal, url, pos_x, pos_y, scale_width, scale_height)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, store.ID, m.ID, i, m.URL, pos.X, pos.Y, m.Scale.Width, m.Scale.Height)
		if err != nil {
			return false, err
		}
	}

	return true, tx.Commit()
}

// SeedStores inserts the stores that do not exist yet and leaves the rest untouched
func (d *Database) SeedStores(ctx context.Context, stores []catalog.Store) (int, error) {
	inserted := 0
	for _, s := range stores {
		created, err := d.CreateStore(ctx, s)
		if err != nil {
			return inserted, err
		}
		if created {
			inserted++
		}
	}
	return inserted, nil
}

// GetStore returns nil when the store does not exist
func (d *Database) GetStore(ctx context.Context, id string) (*catalog.Store, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT id, name, background_image FROM stores WHERE id = ?",
		id,
	)

	var store catalog.Store
	err := row.Scan(&store.ID, &store.Name, &store.BackgroundImage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	models, err := d.listModels(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	store.Models = models[id]
	if store.Models == nil {
		store.Models = []catalog.Model{}
	}
	return &store, nil
}

func (d *Database) ListStores(ctx context.Context, limit, offset int) ([]catalog.Store, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT id, name, background_image FROM stores ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := []catalog.Store{}
	for rows.Next() {
		var s catalog.Store
		if err := rows.Scan(&s.ID, &s.Name, &s.BackgroundImage); err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(stores) == 0 {
		return stores, nil
	}

	models, err := d.listModels(ctx, lo.Map(stores, func(s catalog.Store, _ int) string { return s.ID }))
	if err != nil {
		return nil, err
	}
	for i := range stores {
		stores[i].Models = models[stores[i].ID]
		if stores[i].Models == nil {
			stores[i].Models = []catalog.Model{}
		}
	}
	return stores, nil
}

func (d *Database) DeleteStore(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM stores WHERE id = ?", id)
	return err
}

// Model operations

func (d *Database) listModels(ctx context.Context, storeIDs []string) (map[string][]catalog.Model, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(storeIDs)), ",")
	args := lo.Map(storeIDs, func(id string, _ int) any { return id })

	rows, err := d.db.QueryContext(ctx, `
		SELECT store_id, id, url, pos_x, pos_y, scale_width, scale_height
		FROM models
		WHERE store_id IN (`+placeholders+`)
		ORDER BY store_id, ordinal ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]catalog.Model, len(storeIDs))
	for rows.Next() {
		var storeID string
		var m catalog.Model
		if err := rows.Scan(&storeID, &m.ID, &m.URL, &m.Position.X, &m.Position.Y, &m.Scale.Width, &m.Scale.Height); err != nil {
			return nil, err
		}
		result[storeID] = append(result[storeID], m)
	}
	return result, rows.Err()
}

// UpdateModelPosition overwrites a model's position (last write wins) and
// returns the updated record
func (d *Database) UpdateModelPosition(ctx context.Context, storeID, modelID string, pos coords.Position) (*catalog.Model, error) {
	pos = coords.Clamp(pos)

	res, err := d.db.ExecContext(ctx, `
		UPDATE models SET pos_x = ?, pos_y = ?, updated_at = CURRENT_TIMESTAMP
		WHERE store_id = ? AND id = ?
	`, pos.X, pos.Y, storeID, modelID)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	if _, err := d.db.ExecContext(ctx,
		"UPDATE stores SET updated_at = CURRENT_TIMESTAMP WHERE id = ?", storeID,
	); err != nil {
		return nil, err
	}

	var m catalog.Model
	err = d.db.QueryRowContext(ctx, `
		SELECT id, url, pos_x, pos_y, scale_width, scale_height
		FROM models WHERE store_id = ? AND id = ?
	`, storeID, modelID).Scan(&m.ID, &m.URL, &m.Position.X, &m.Position.Y, &m.Scale.Width, &m.Scale.Height)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Stats

func (d *Database) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var storeCount int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stores").Scan(&storeCount); err != nil {
		return nil, err
	}
	stats["store_count"] = storeCount

	var modelCount int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM models").Scan(&modelCount); err != nil {
		return nil, err
	}
	stats["model_count"] = modelCount

	return stats, nil
}
