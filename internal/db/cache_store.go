package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/JGnft17/clawtographer/internal/cache"
	"github.com/JGnft17/clawtographer/internal/errors"
)

// CacheStore is the SQLite cache.Store backend. Every write is a single
// statement, so an entry is never observed half-written.
type CacheStore struct {
	db *sql.DB
}

// NewCacheStore wraps an initialized database.
func NewCacheStore(db *sql.DB) *CacheStore {
	return &CacheStore{db: db}
}

func (s *CacheStore) Name() string { return "sqlite" }

func (s *CacheStore) Get(ctx context.Context, identity string) (*cache.Entry, error) {
	query := `
		SELECT identity, status, analysis, error_code, error_message,
			attempts, model, files_json, tokens_estimate, created_at, updated_at
		FROM chunk_entries
		WHERE identity = ?
	`
	row := s.db.QueryRowContext(ctx, query, identity)

	var (
		e         cache.Entry
		status    string
		errCode   sql.NullString
		errMsg    sql.NullString
		model     sql.NullString
		filesJSON string
	)
	err := row.Scan(&e.Identity, &status, &e.Analysis, &errCode, &errMsg,
		&e.Attempts, &model, &filesJSON, &e.TokensEstimate, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("cache entry", identity)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	e.Status = cache.Status(status)
	e.ErrorCode = errCode.String
	e.ErrorMessage = errMsg.String
	e.Model = model.String
	if err := json.Unmarshal([]byte(filesJSON), &e.Files); err != nil {
		return nil, errors.NewCache(identity, err)
	}
	if !e.Status.Valid() {
		return nil, errors.NewCache(identity, fmt.Errorf("unknown status %q", status))
	}
	return &e, nil
}

func (s *CacheStore) Put(ctx context.Context, e *cache.Entry) error {
	if err := cache.ValidateIdentity(e.Identity); err != nil {
		return err
	}
	if !e.Status.Valid() {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid status %q", e.Status))
	}

	files := e.Files
	if files == nil {
		files = []string{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return errors.NewInternal(err)
	}

	now := time.Now().Unix()
	if e.CreatedAt == 0 {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	query := `
		INSERT INTO chunk_entries (
			identity, status, analysis, error_code, error_message,
			attempts, model, files_json, tokens_estimate, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			status = excluded.status,
			analysis = excluded.analysis,
			error_code = excluded.error_code,
			error_message = excluded.error_message,
			attempts = excluded.attempts,
			model = excluded.model,
			files_json = excluded.files_json,
			tokens_estimate = excluded.tokens_estimate,
			updated_at = excluded.updated_at
		RETURNING created_at
	`
	err = s.db.QueryRowContext(ctx, query,
		e.Identity, string(e.Status), e.Analysis, nullString(e.ErrorCode), nullString(e.ErrorMessage),
		e.Attempts, nullString(e.Model), string(filesJSON), e.TokensEstimate, e.CreatedAt, e.UpdatedAt,
	).Scan(&e.CreatedAt)
	if err != nil {
		return errors.NewCache(e.Identity, err)
	}
	return nil
}

func (s *CacheStore) Complete(ctx context.Context, identity string) (bool, error) {
	query := `
		SELECT 1 FROM chunk_entries
		WHERE identity = ? AND status = 'complete' AND analysis <> ''
		LIMIT 1
	`
	var exists int
	err := s.db.QueryRowContext(ctx, query, identity).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

func (s *CacheStore) Delete(ctx context.Context, identity string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chunk_entries WHERE identity = ?`, identity)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("cache entry", identity)
	}
	return nil
}

func (s *CacheStore) List(ctx context.Context, f cache.Filter) ([]cache.Summary, int, error) {
	where, args := filterClause(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `
		SELECT identity, status, error_code, attempts, model, files_json,
			tokens_estimate, length(analysis), created_at, updated_at
		FROM chunk_entries` + where + `
		ORDER BY updated_at DESC, identity ASC`
	pageArgs := append([]any(nil), args...)
	// LIMIT -1 is unbounded, so Offset applies on its own too.
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` LIMIT ? OFFSET ?`
	pageArgs = append(pageArgs, limit, max(f.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var items []cache.Summary
	for rows.Next() {
		var (
			sum       cache.Summary
			status    string
			errCode   sql.NullString
			model     sql.NullString
			filesJSON string
			files     []string
		)
		if err := rows.Scan(&sum.Identity, &status, &errCode, &sum.Attempts, &model, &filesJSON,
			&sum.TokensEstimate, &sum.AnalysisChars, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		sum.Status = cache.Status(status)
		sum.ErrorCode = errCode.String
		sum.Model = model.String
		if json.Unmarshal([]byte(filesJSON), &files) == nil {
			sum.FileCount = len(files)
		}
		items = append(items, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return items, total, nil
}

func (s *CacheStore) Purge(ctx context.Context, f cache.Filter) (int, error) {
	where, args := filterClause(f)
	result, err := s.db.ExecContext(ctx, `DELETE FROM chunk_entries`+where, args...)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

func filterClause(f cache.Filter) (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.UpdatedBefore > 0 {
		conds = append(conds, "updated_at < ?")
		args = append(args, f.UpdatedBefore)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
