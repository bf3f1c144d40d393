package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/local/flashdeck/internal/analyzer"
	"github.com/local/flashdeck/internal/cards"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	progress   INTEGER NOT NULL DEFAULT 0,
	message    TEXT NOT NULL DEFAULT '',
	start_time TEXT,
	end_time   TEXT,
	metadata   TEXT,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pages (
	job_id         TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	page_index     INTEGER NOT NULL,
	vision         INTEGER NOT NULL,
	text_ratio     REAL NOT NULL,
	text_area      REAL NOT NULL,
	graphics_area  REAL NOT NULL,
	graphics_ratio REAL NOT NULL,
	complexity     REAL NOT NULL,
	graphics_count INTEGER NOT NULL,
	width          INTEGER NOT NULL,
	height         INTEGER NOT NULL,
	text           TEXT NOT NULL,
	PRIMARY KEY (job_id, page_index)
);

CREATE TABLE IF NOT EXISTS cards (
	job_id   TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	number   INTEGER NOT NULL,
	question TEXT NOT NULL,
	answer   TEXT NOT NULL,
	chapter  TEXT NOT NULL,
	page     INTEGER NOT NULL,
	route    TEXT NOT NULL,
	provider TEXT NOT NULL,
	model    TEXT NOT NULL,
	PRIMARY KEY (job_id, number)
);

CREATE TABLE IF NOT EXISTS card_sets (
	job_id TEXT PRIMARY KEY REFERENCES jobs(id) ON DELETE CASCADE
);
`

// SQLiteStore keeps job state in a local SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and initializes the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer avoids SQLITE_BUSY between workers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func formatTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func (s *SQLiteStore) SetStatus(ctx context.Context, jobID string, st Status) error {
	var meta sql.NullString
	if st.Metadata != nil {
		b, err := json.Marshal(st.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, status, progress, message, start_time, end_time, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			message = excluded.message,
			start_time = COALESCE(excluded.start_time, jobs.start_time),
			end_time = COALESCE(excluded.end_time, jobs.end_time),
			metadata = COALESCE(excluded.metadata, jobs.metadata),
			updated_at = excluded.updated_at`,
		jobID, st.Status, st.Progress, st.Message, formatTime(st.Start), formatTime(st.End), meta,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set status %s: %w", jobID, err)
	}
	return nil
}

func (s *SQLiteStore) GetStatus(ctx context.Context, jobID string) (Status, bool, error) {
	var (
		st         Status
		start, end sql.NullString
		meta       sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, progress, message, start_time, end_time, metadata FROM jobs WHERE id = ?`, jobID).
		Scan(&st.Status, &st.Progress, &st.Message, &start, &end, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return Status{}, false, nil
	}
	if err != nil {
		return Status{}, false, fmt.Errorf("get status %s: %w", jobID, err)
	}
	st.Start = parseTime(start)
	st.End = parseTime(end)
	if meta.Valid && meta.String != "" {
		_ = json.Unmarshal([]byte(meta.String), &st.Metadata)
	}
	return st, true, nil
}

// SaveAnalysis replaces the stored analysis of jobID. The job row must exist.
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, jobID string, results analyzer.Results) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE job_id = ?`, jobID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO pages (job_id, page_index, vision, text_ratio, text_area, graphics_area,
				graphics_ratio, complexity, graphics_count, width, height, text)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, a := range results {
			if _, err := stmt.ExecContext(ctx, jobID, a.PageIndex, a.UseExpensiveModel, a.TextRatio,
				a.TextArea, a.GraphicsArea, a.GraphicsRatio, a.ComplexityScore, a.GraphicsCount,
				a.PageDimensions.Width, a.PageDimensions.Height, a.Text); err != nil {
				return fmt.Errorf("page %d: %w", a.PageIndex, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, jobID string) (analyzer.Results, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT page_index, vision, text_ratio, text_area, graphics_area, graphics_ratio,
			complexity, graphics_count, width, height, text
		FROM pages WHERE job_id = ? ORDER BY page_index`, jobID)
	if err != nil {
		return nil, fmt.Errorf("get analysis %s: %w", jobID, err)
	}
	defer rows.Close()

	var out analyzer.Results
	for rows.Next() {
		var a analyzer.PageAnalysis
		if err := rows.Scan(&a.PageIndex, &a.UseExpensiveModel, &a.TextRatio, &a.TextArea,
			&a.GraphicsArea, &a.GraphicsRatio, &a.ComplexityScore, &a.GraphicsCount,
			&a.PageDimensions.Width, &a.PageDimensions.Height, &a.Text); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveCards replaces the stored cards of jobID. The job row must exist.
func (s *SQLiteStore) SaveCards(ctx context.Context, jobID string, cs []cards.Card) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE job_id = ?`, jobID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO card_sets (job_id) VALUES (?)`, jobID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO cards (job_id, number, question, answer, chapter, page, route, provider, model)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range cs {
			if _, err := stmt.ExecContext(ctx, jobID, c.Number, c.Question, c.Answer, c.Chapter,
				c.Page, c.Route, c.Provider, c.Model); err != nil {
				return fmt.Errorf("card %d: %w", c.Number, err)
			}
		}
		return nil
	})
}

// GetCards reports false when no card set was ever saved for jobID; a saved
// empty set returns true with no cards.
func (s *SQLiteStore) GetCards(ctx context.Context, jobID string) ([]cards.Card, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT job_id FROM card_sets WHERE job_id = ?`, jobID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cards %s: %w", jobID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT number, question, answer, chapter, page, route, provider, model
		FROM cards WHERE job_id = ? ORDER BY number`, jobID)
	if err != nil {
		return nil, false, fmt.Errorf("get cards %s: %w", jobID, err)
	}
	defer rows.Close()

	out := []cards.Card{}
	for rows.Next() {
		var c cards.Card
		if err := rows.Scan(&c.Number, &c.Question, &c.Answer, &c.Chapter, &c.Page,
			&c.Route, &c.Provider, &c.Model); err != nil {
			return nil, false, fmt.Errorf("scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, true, rows.Err()
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
