package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hurttlocker/chartex/internal/segment"
)

// DefaultDBPath is the default index database location, kept separate
// from the cache store so either can be wiped independently.
const DefaultDBPath = "~/.chartex/index.db"

const defaultQueryLimit = 20

// Config holds configuration for NewSQLiteIndex.
type Config struct {
	DBPath string
}

// SQLiteIndex implements Index over a records table with an FTS5
// virtual table for BM25 ranking. When the SQLite build lacks FTS5
// the index degrades to LIKE matching.
type SQLiteIndex struct {
	db  *sql.DB
	fts bool
}

// NewSQLiteIndex opens (creating if needed) a SQLite-backed Index.
// Pass ":memory:" for in-memory databases (testing).
func NewSQLiteIndex(cfg Config) (*SQLiteIndex, error) {
	path := cfg.DBPath
	if path == "" {
		path = expandPath(DefaultDBPath)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging index database: %w", err)
	}
	for _, p := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	idx := &SQLiteIndex{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating index schema: %w", err)
	}
	return idx, nil
}

func (idx *SQLiteIndex) migrate() error {
	_, err := idx.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			owner        TEXT NOT NULL,
			record_id    TEXT NOT NULL,
			name         TEXT NOT NULL,
			value        TEXT NOT NULL DEFAULT '',
			date         TEXT NOT NULL DEFAULT '',
			source_file  TEXT NOT NULL,
			page         INTEGER NOT NULL DEFAULT 1,
			category     TEXT NOT NULL,
			raw_content  TEXT NOT NULL DEFAULT '',
			raw_markdown TEXT NOT NULL DEFAULT '',
			indexed_at   TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("creating records table: %w", err)
	}

	_, err = idx.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_records_owner_file
		ON records(owner, source_file)`)
	if err != nil {
		return fmt.Errorf("creating owner/file index: %w", err)
	}

	// FTS5 is optional at build time; fall back to LIKE matching.
	_, err = idx.db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
			name, value, raw_content,
			content='records', content_rowid='id'
		)`)
	if err == nil {
		idx.fts = true
		_, err = idx.db.Exec(`
			CREATE TRIGGER IF NOT EXISTS records_ai AFTER INSERT ON records BEGIN
				INSERT INTO records_fts(rowid, name, value, raw_content)
				VALUES (new.id, new.name, new.value, new.raw_content);
			END`)
		if err != nil {
			return fmt.Errorf("creating insert trigger: %w", err)
		}
		_, err = idx.db.Exec(`
			CREATE TRIGGER IF NOT EXISTS records_ad AFTER DELETE ON records BEGIN
				INSERT INTO records_fts(records_fts, rowid, name, value, raw_content)
				VALUES ('delete', old.id, old.name, old.value, old.raw_content);
			END`)
		if err != nil {
			return fmt.Errorf("creating delete trigger: %w", err)
		}
	}
	return nil
}

func (idx *SQLiteIndex) BulkIndex(ctx context.Context, owner string, records []segment.Record) (Outcome, error) {
	out := Outcome{Total: len(records)}
	if len(records) == 0 {
		return out, nil
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return out, fmt.Errorf("beginning index transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (owner, record_id, name, value, date, source_file,
		                     page, category, raw_content, raw_markdown, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return out, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		_, err := stmt.ExecContext(ctx, owner, r.ID, r.Name, r.Value, r.Date,
			r.SourceFile, r.Page, r.Category, r.RawContent, r.RawMarkdown, now)
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", r.ID, err))
			continue
		}
		out.Indexed++
	}

	if err := tx.Commit(); err != nil {
		return out, fmt.Errorf("committing index transaction: %w", err)
	}
	return out, nil
}

func (idx *SQLiteIndex) DeleteByFile(ctx context.Context, owner, fileName string) (int, error) {
	res, err := idx.db.ExecContext(ctx,
		"DELETE FROM records WHERE owner = ? AND source_file = ?", owner, fileName)
	if err != nil {
		return 0, fmt.Errorf("deleting records for %s: %w", fileName, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (idx *SQLiteIndex) Query(ctx context.Context, owner string, opts QueryOpts) (QueryResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	var rows *sql.Rows
	var err error
	if opts.Query != "" && idx.fts {
		rows, err = idx.db.QueryContext(ctx, `
			SELECT r.record_id, r.name, r.value, r.date, r.source_file, r.page,
			       r.category, r.raw_content, r.raw_markdown, rank,
			       snippet(records_fts, 2, '<b>', '</b>', '...', 24)
			FROM records_fts
			JOIN records r ON records_fts.rowid = r.id
			WHERE records_fts MATCH ?
			  AND r.owner = ?
			  AND (? = '' OR r.category = ?)
			  AND (? = '' OR r.source_file = ?)
			ORDER BY rank
			LIMIT ?`,
			opts.Query, owner, opts.Category, opts.Category,
			opts.SourceFile, opts.SourceFile, limit)
	} else {
		like := "%" + opts.Query + "%"
		rows, err = idx.db.QueryContext(ctx, `
			SELECT record_id, name, value, date, source_file, page,
			       category, raw_content, raw_markdown, 0.0, ''
			FROM records
			WHERE owner = ?
			  AND (? = '' OR name LIKE ? OR raw_content LIKE ?)
			  AND (? = '' OR category = ?)
			  AND (? = '' OR source_file = ?)
			ORDER BY id
			LIMIT ?`,
			owner, opts.Query, like, like,
			opts.Category, opts.Category,
			opts.SourceFile, opts.SourceFile, limit)
	}
	if err != nil {
		return QueryResult{}, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var result QueryResult
	for rows.Next() {
		var h Hit
		r := &h.Record
		if err := rows.Scan(&r.ID, &r.Name, &r.Value, &r.Date, &r.SourceFile,
			&r.Page, &r.Category, &r.RawContent, &r.RawMarkdown,
			&h.Score, &h.Snippet); err != nil {
			return QueryResult{}, fmt.Errorf("scanning hit: %w", err)
		}
		result.Hits = append(result.Hits, h)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, err
	}
	result.Total = len(result.Hits)

	// FTS can miss content its tokenizer mangles; retry with LIKE.
	if len(result.Hits) == 0 && opts.Query != "" && idx.fts {
		likeOpts := opts
		return idx.queryLike(ctx, owner, likeOpts, limit)
	}
	return result, nil
}

func (idx *SQLiteIndex) queryLike(ctx context.Context, owner string, opts QueryOpts, limit int) (QueryResult, error) {
	like := "%" + opts.Query + "%"
	rows, err := idx.db.QueryContext(ctx, `
		SELECT record_id, name, value, date, source_file, page,
		       category, raw_content, raw_markdown
		FROM records
		WHERE owner = ?
		  AND (name LIKE ? OR raw_content LIKE ?)
		  AND (? = '' OR category = ?)
		  AND (? = '' OR source_file = ?)
		ORDER BY id
		LIMIT ?`,
		owner, like, like,
		opts.Category, opts.Category,
		opts.SourceFile, opts.SourceFile, limit)
	if err != nil {
		return QueryResult{}, fmt.Errorf("LIKE fallback: %w", err)
	}
	defer rows.Close()

	var result QueryResult
	for rows.Next() {
		var h Hit
		r := &h.Record
		if err := rows.Scan(&r.ID, &r.Name, &r.Value, &r.Date, &r.SourceFile,
			&r.Page, &r.Category, &r.RawContent, &r.RawMarkdown); err != nil {
			return QueryResult{}, fmt.Errorf("scanning fallback hit: %w", err)
		}
		result.Hits = append(result.Hits, h)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, err
	}
	result.Total = len(result.Hits)
	return result, nil
}

// CountByFile returns how many live records the index holds for one
// (owner, file) pair.
func (idx *SQLiteIndex) CountByFile(ctx context.Context, owner, fileName string) (int, error) {
	var n int
	err := idx.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE owner = ? AND source_file = ?",
		owner, fileName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

func (idx *SQLiteIndex) Close() error {
	return idx.db.Close()
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
