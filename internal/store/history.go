package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/totalityengine/api/internal/model"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS analysis_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	status TEXT NOT NULL,
	raw_result TEXT NOT NULL,
	embedding TEXT,
	dissonance_score REAL,
	vibe_descriptor TEXT,
	lyrical_sentiment TEXT,
	artist_id TEXT NOT NULL,
	markets TEXT
);
CREATE INDEX IF NOT EXISTS idx_analysis_results_timestamp ON analysis_results(timestamp);
CREATE INDEX IF NOT EXISTS idx_analysis_results_artist ON analysis_results(artist_id);
`

// HistoryStore persists the compact analysis projection to SQLite so
// completed runs survive restarts and can be listed and searched.
type HistoryStore struct {
	db   *sql.DB
	path string
}

// OpenHistory initializes or connects to the history database.
func OpenHistory(path string) (*HistoryStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &HistoryStore{db: db, path: path}, nil
}

func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// Insert writes one persisted record and returns its row id. Records are
// written at most once per job; the caller owns that guarantee.
func (s *HistoryStore) Insert(ctx context.Context, rec *model.PersistedRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_results
			(filename, timestamp, status, raw_result, embedding,
			 dissonance_score, vibe_descriptor, lyrical_sentiment, artist_id, markets)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Filename,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.Status,
		rec.RawResult,
		rec.EmbeddingJSON,
		rec.DissonanceScore,
		rec.VibeDescriptor,
		rec.LyricalSentiment,
		rec.ArtistID,
		rec.Markets,
	)
	if err != nil {
		return 0, fmt.Errorf("insert analysis result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit history entries ordered by descending timestamp.
func (s *HistoryStore) Recent(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, timestamp, artist_id
		FROM analysis_results
		ORDER BY timestamp DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := make([]model.HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			entry model.HistoryEntry
			ts    string
		)
		if err := rows.Scan(&entry.ID, &entry.Filename, &ts, &entry.ArtistID); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse history timestamp: %w", err)
		}
		entry.Timestamp = parsed
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Get returns one persisted record by row id.
func (s *HistoryStore) Get(ctx context.Context, id int64) (*model.PersistedRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, timestamp, status, raw_result, embedding,
		       dissonance_score, vibe_descriptor, lyrical_sentiment, artist_id, markets
		FROM analysis_results WHERE id = ?`, id)

	var (
		rec     model.PersistedRecord
		ts      string
		markets sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.Filename, &ts, &rec.Status, &rec.RawResult,
		&rec.EmbeddingJSON, &rec.DissonanceScore, &rec.VibeDescriptor,
		&rec.LyricalSentiment, &rec.ArtistID, &markets)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("analysis result %d: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("scan analysis result: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	rec.Timestamp = parsed
	if markets.Valid {
		rec.Markets = markets.String
	}
	return &rec, nil
}
