package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/JGnft17/clawtographer/internal/errors"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunComplete  = "complete"
	RunPartial   = "partial"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
	RunEmpty     = "empty"
)

// Run is one recorded invocation of the map operation.
type Run struct {
	ID         string `json:"id"`
	Root       string `json:"root"`
	OutputPath string `json:"output_path"`
	Provider   string `json:"provider,omitempty"`
	Model      string `json:"model,omitempty"`
	Mode       string `json:"mode,omitempty"` // synthesis or concatenation
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	Cached     int    `json:"cached"`
	Analyzed   int    `json:"analyzed"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt *int64 `json:"finished_at,omitempty"`
}

// RunChunk links a run to the chunk identity it used at a given index.
type RunChunk struct {
	Index     int    `json:"index"`
	Identity  string `json:"identity"`
	FileCount int    `json:"file_count"`
	Tokens    int    `json:"tokens"`
	FromCache bool   `json:"from_cache"`
	Status    string `json:"status"`
}

// InsertRun records a new run in the running state.
func InsertRun(ctx context.Context, db *sql.DB, r *Run) error {
	query := `
		INSERT INTO runs (
			id, root, output_path, provider, model, mode, status,
			chunk_count, cached, analyzed, failed, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`
	_, err := db.ExecContext(ctx, query,
		r.ID, r.Root, r.OutputPath, nullString(r.Provider), nullString(r.Model), nullString(r.Mode), r.Status,
		r.ChunkCount, r.Cached, r.Analyzed, r.Failed, nullString(r.Error), r.StartedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// FinishRun stores the final counters and status and stamps finished_at.
func FinishRun(ctx context.Context, db *sql.DB, r *Run) error {
	now := time.Now().Unix()
	query := `
		UPDATE runs
		SET provider = ?, model = ?, mode = ?, status = ?, chunk_count = ?,
			cached = ?, analyzed = ?, failed = ?, error = ?, finished_at = ?
		WHERE id = ?
	`
	result, err := db.ExecContext(ctx, query,
		nullString(r.Provider), nullString(r.Model), nullString(r.Mode), r.Status, r.ChunkCount,
		r.Cached, r.Analyzed, r.Failed, nullString(r.Error), now,
		r.ID,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("run", r.ID)
	}
	r.FinishedAt = &now
	return nil
}

// InsertRunChunks stores the chunk list of a run in one transaction.
func InsertRunChunks(ctx context.Context, db *sql.DB, runID string, chunks []RunChunk) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO run_chunks (
			run_id, chunk_index, identity, file_count, tokens, from_cache, status
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, runID, c.Index, c.Identity, c.FileCount, c.Tokens, c.FromCache, c.Status); err != nil {
			return errors.NewInternal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

const runColumns = `id, root, output_path, provider, model, mode, status,
	chunk_count, cached, analyzed, failed, error, started_at, finished_at`

// GetRun retrieves a run by its ULID.
func GetRun(ctx context.Context, db *sql.DB, id string) (*Run, error) {
	row := db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("run", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// ListRuns returns runs newest first, plus the total count.
func ListRuns(ctx context.Context, db *sql.DB, limit, offset int) ([]Run, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return runs, total, nil
}

// ListRunChunks returns the chunks of a run in index order.
func ListRunChunks(ctx context.Context, db *sql.DB, runID string) ([]RunChunk, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT chunk_index, identity, file_count, tokens, from_cache, status
		FROM run_chunks
		WHERE run_id = ?
		ORDER BY chunk_index ASC
	`, runID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	chunks := []RunChunk{}
	for rows.Next() {
		var c RunChunk
		if err := rows.Scan(&c.Index, &c.Identity, &c.FileCount, &c.Tokens, &c.FromCache, &c.Status); err != nil {
			return nil, errors.NewInternal(err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return chunks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		r          Run
		provider   sql.NullString
		model      sql.NullString
		mode       sql.NullString
		runErr     sql.NullString
		finishedAt sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.Root, &r.OutputPath, &provider, &model, &mode, &r.Status,
		&r.ChunkCount, &r.Cached, &r.Analyzed, &r.Failed, &runErr, &r.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	r.Provider = provider.String
	r.Model = model.String
	r.Mode = mode.String
	r.Error = runErr.String
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Int64
	}
	return &r, nil
}
