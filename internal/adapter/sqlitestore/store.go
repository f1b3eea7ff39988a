package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/claude-lsp/sidecar/internal/domain/dedup"
)

// Store implements dedup.Store and dedup.PendingStore against the embedded
// SQLite database described in migrations/00001_initial.sql.
type Store struct {
	db *sql.DB
}

// New wraps an already-opened, already-migrated database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database handle. The dispatcher opens and
// closes the store around each hook transaction.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadDelivered returns the set of fingerprints already delivered for project.
func (s *Store) LoadDelivered(ctx context.Context, project string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint FROM delivered_fingerprints WHERE project = ?`, project)
	if err != nil {
		return nil, fmt.Errorf("load delivered: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("scan delivered: %w", err)
		}
		out[fp] = true
	}
	return out, rows.Err()
}

// CommitDelivered atomically replaces the delivered fingerprint set for
// project with fingerprints, keyed by fingerprint -> severity.
func (s *Store) CommitDelivered(ctx context.Context, project string, fingerprints map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM delivered_fingerprints WHERE project = ?`, project); err != nil {
		return fmt.Errorf("clear delivered: %w", err)
	}

	now := time.Now().UTC()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO delivered_fingerprints(project, fingerprint, severity, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for fp, severity := range fingerprints {
		if _, err := stmt.ExecContext(ctx, project, fp, severity, now, now); err != nil {
			return fmt.Errorf("insert delivered: %w", err)
		}
	}

	return tx.Commit()
}

// MarkPending inserts (or refreshes) a pending-check row for filePath.
func (s *Store) MarkPending(ctx context.Context, filePath, projectRoot string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_file_checks(file_path, project_root, created_at, checked)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(file_path) DO UPDATE SET created_at = excluded.created_at, checked = 0`,
		filePath, projectRoot, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark pending: %w", err)
	}
	return nil
}

// OldestPending returns the oldest un-checked pending row, preferring rows
// in preferredProject, or (false, nil) if none exist.
func (s *Store) OldestPending(ctx context.Context, preferredProject string) (dedup.PendingCheck, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT file_path, project_root, created_at FROM pending_file_checks
		WHERE checked = 0
		ORDER BY (project_root != ?) ASC, created_at ASC
		LIMIT 1`, preferredProject)

	var pc dedup.PendingCheck
	if err := row.Scan(&pc.FilePath, &pc.ProjectRoot, &pc.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return dedup.PendingCheck{}, false, nil
		}
		return dedup.PendingCheck{}, false, fmt.Errorf("scan pending: %w", err)
	}
	return pc, true, nil
}

// MarkChecked marks a pending row as handled without deleting it.
func (s *Store) MarkChecked(ctx context.Context, filePath string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE pending_file_checks SET checked = 1 WHERE file_path = ?`, filePath)
	if err != nil {
		return fmt.Errorf("mark checked: %w", err)
	}
	return nil
}

// ExpireOlderThan marks unchecked pending rows older than cutoff as checked
// without reporting them.
func (s *Store) ExpireOlderThan(ctx context.Context, cutoff time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_file_checks SET checked = 1 WHERE checked = 0 AND created_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("expire pending: %w", err)
	}
	return nil
}

// PurgeOlderThan permanently deletes pending rows older than cutoff,
// regardless of checked state.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_file_checks WHERE created_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("purge pending: %w", err)
	}
	return nil
}

// RecordLanguageServer upserts bookkeeping for a running language server.
func (s *Store) RecordLanguageServer(ctx context.Context, project, language string, pid int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO language_servers(project, language, pid, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project, language) DO UPDATE SET pid = excluded.pid, started_at = excluded.started_at`,
		project, language, pid, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record language server: %w", err)
	}
	return nil
}

// RemoveLanguageServer deletes bookkeeping on session shutdown.
func (s *Store) RemoveLanguageServer(ctx context.Context, project, language string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM language_servers WHERE project = ? AND language = ?`, project, language)
	if err != nil {
		return fmt.Errorf("remove language server: %w", err)
	}
	return nil
}
