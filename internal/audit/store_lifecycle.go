package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"callaudit/internal/scoring"
	"callaudit/internal/services"
)

// Finalize atomically writes the scorer output onto the audit, marks it
// completed, and demotes any other latest audit for the same (case, rubric)
// pair. One transaction so a reader never observes zero or two latest rows.
// Finalizing an audit that is not running is rejected.
func (s *Store) Finalize(ctx context.Context, auditID string, summary scoring.Summary, stats Statistics) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal statistics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finalize tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		statusStr string
		caseRef   string
		rubricRef string
	)
	row := tx.QueryRowContext(ctx, `SELECT status, case_ref, rubric_ref FROM audits WHERE id = ?`, auditID)
	if err := row.Scan(&statusStr, &caseRef, &rubricRef); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return services.Wrap(services.ErrNotFound, "audit", "finalize", fmt.Sprintf("audit %s not found", auditID), nil)
		}
		return fmt.Errorf("load audit for finalize: %w", err)
	}
	if Status(statusStr) != StatusRunning {
		return services.Wrap(services.ErrValidation, "audit", "finalize",
			fmt.Sprintf("audit %s is %s, only running audits can be finalized", auditID, statusStr), nil)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE audits
         SET is_latest = 0
         WHERE case_ref = ? AND rubric_ref = ? AND is_latest = 1 AND id != ?`,
		caseRef,
		rubricRef,
		auditID,
	); err != nil {
		return fmt.Errorf("demote previous latest: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE audits
         SET status = ?, niveau = ?, score_percentage = ?, critical_passed = ?,
             critical_total = ?, earned_weight = ?, total_weight = ?,
             is_latest = 1, statistics_json = ?, completed_at = ?
         WHERE id = ?`,
		StatusCompleted,
		summary.Niveau,
		summary.Score,
		summary.CriticalPassed,
		summary.CriticalTotal,
		summary.EarnedWeight,
		summary.TotalWeight,
		string(statsJSON),
		now,
		auditID,
	); err != nil {
		return fmt.Errorf("finalize audit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finalize: %w", err)
	}
	return nil
}

// MarkFailed moves an audit to the terminal failed state with a descriptive
// message. An already-completed audit is never overwritten.
func (s *Store) MarkFailed(ctx context.Context, auditID, message string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE audits
         SET status = ?, error_message = ?, completed_at = ?
         WHERE id = ? AND status != ?`,
		StatusFailed,
		message,
		time.Now().UTC().Format(time.RFC3339Nano),
		auditID,
		StatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("mark audit failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrValidation, "audit", "mark-failed",
			fmt.Sprintf("audit %s is completed or missing", auditID), nil)
	}
	return nil
}

// SoftDelete sets deleted_at on an audit. Hard deletes are never performed.
func (s *Store) SoftDelete(ctx context.Context, auditID string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE audits SET deleted_at = ?, is_latest = 0 WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339Nano),
		auditID,
	)
	if err != nil {
		return false, fmt.Errorf("soft delete audit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkStuckFailed fails running audits older than the cutoff. A crash mid-run
// leaves a stuck running row; reconciliation calls this to make the failure
// visible.
func (s *Store) MarkStuckFailed(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE audits
         SET status = ?, error_message = 'Marked failed by reconciliation (stuck running)', completed_at = ?
         WHERE status = ? AND started_at < ?`,
		StatusFailed,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusRunning,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("mark stuck audits failed: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of audits grouped by status, excluding soft-deleted
// rows.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM audits WHERE deleted_at IS NULL GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
