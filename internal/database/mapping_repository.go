package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/models"
)

// MappingRepository persists confirmed Trakt→Emby resolutions. One row per
// (kind, trakt_id); upserts overwrite, rows are never expired.
type MappingRepository struct {
	db *sql.DB
}

// NewMappingRepository creates a mapping repository.
func NewMappingRepository(db *sql.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// Upsert inserts or overwrites the mapping for (kind, traktID).
func (r *MappingRepository) Upsert(rec models.MappingRecord) error {
	if rec.LastUpdated.IsZero() {
		rec.LastUpdated = time.Now().UTC()
	}
	_, err := r.db.Exec(`
		INSERT INTO mappings (kind, trakt_id, emby_id, title, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (kind, trakt_id) DO UPDATE SET
			emby_id = excluded.emby_id,
			title = excluded.title,
			last_updated = excluded.last_updated`,
		string(rec.Kind), rec.TraktID, rec.EmbyID, rec.Title, rec.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert mapping: %w", err)
	}
	return nil
}

// Get returns the mapping for (kind, traktID), or nil when none exists.
func (r *MappingRepository) Get(kind models.MediaKind, traktID string) (*models.MappingRecord, error) {
	row := r.db.QueryRow(`
		SELECT kind, trakt_id, emby_id, title, last_updated
		FROM mappings WHERE kind = ? AND trakt_id = ?`,
		string(kind), traktID,
	)

	var rec models.MappingRecord
	var kindStr string
	err := row.Scan(&kindStr, &rec.TraktID, &rec.EmbyID, &rec.Title, &rec.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mapping: %w", err)
	}
	rec.Kind = models.MediaKind(kindStr)
	return &rec, nil
}

// All returns every mapping, ordered by most recently updated first.
func (r *MappingRepository) All() ([]models.MappingRecord, error) {
	rows, err := r.db.Query(`
		SELECT kind, trakt_id, emby_id, title, last_updated
		FROM mappings ORDER BY last_updated DESC`)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var records []models.MappingRecord
	for rows.Next() {
		var rec models.MappingRecord
		var kindStr string
		if err := rows.Scan(&kindStr, &rec.TraktID, &rec.EmbyID, &rec.Title, &rec.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		rec.Kind = models.MediaKind(kindStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the number of stored mappings.
func (r *MappingRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM mappings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count mappings: %w", err)
	}
	return n, nil
}

// Delete removes the mapping for (kind, traktID). Missing rows are not an
// error.
func (r *MappingRepository) Delete(kind models.MediaKind, traktID string) error {
	_, err := r.db.Exec(`DELETE FROM mappings WHERE kind = ? AND trakt_id = ?`,
		string(kind), traktID)
	if err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	return nil
}
