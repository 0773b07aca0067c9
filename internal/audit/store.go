package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"callaudit/internal/config"
	"callaudit/internal/services"
)

// Store manages audit persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the audit database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// CreatePending inserts a new running audit row. It must be called exactly
// once per run attempt; the generated identifier is written back to the audit.
func (s *Store) CreatePending(ctx context.Context, a *Audit) error {
	if a == nil {
		return errors.New("audit is nil")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Status = StatusRunning
	a.StartedAt = time.Now().UTC()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO audits (
            id, case_ref, case_name, case_group, rubric_ref, rubric_name,
            rubric_json, status, started_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.CaseRef,
		nullableString(a.CaseName),
		nullableString(a.CaseGroup),
		a.RubricRef,
		nullableString(a.RubricName),
		nullableString(a.RubricJSON),
		a.Status,
		a.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// GetByID fetches an audit by identifier, nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Audit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audits WHERE id = ?`, id)
	a, err := scanAudit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get audit: %w", err)
	}
	return a, nil
}

// ListByCase returns non-deleted audits for a case, most recent first.
func (s *Store) ListByCase(ctx context.Context, caseRef string) ([]*Audit, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+auditColumns+` FROM audits WHERE case_ref = ? AND deleted_at IS NULL ORDER BY started_at DESC`,
		caseRef,
	)
	if err != nil {
		return nil, fmt.Errorf("list audits by case: %w", err)
	}
	defer rows.Close()
	return collectAudits(rows)
}

// List returns all non-deleted audits, most recent first.
func (s *Store) List(ctx context.Context) ([]*Audit, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+auditColumns+` FROM audits WHERE deleted_at IS NULL ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	defer rows.Close()
	return collectAudits(rows)
}

// Latest returns the authoritative completed audit for a (case, rubric)
// pair, nil when none exists.
func (s *Store) Latest(ctx context.Context, caseRef, rubricRef string) (*Audit, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+auditColumns+` FROM audits
         WHERE case_ref = ? AND rubric_ref = ? AND is_latest = 1 AND deleted_at IS NULL
         LIMIT 1`,
		caseRef,
		rubricRef,
	)
	a, err := scanAudit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest audit: %w", err)
	}
	return a, nil
}

// UpsertStepResult creates or refreshes the result row keyed by the unique
// (audit, step position) pair. Safe to call repeatedly; crash-recovery replay
// produces the same final row, last write wins. The human-review trail is
// deliberately not touched here so replays never erase review history.
func (s *Store) UpsertStepResult(ctx context.Context, result *StepResult) error {
	if result == nil {
		return errors.New("step result is nil")
	}
	if result.AuditID == "" {
		return services.Wrap(services.ErrValidation, "audit", "upsert-step", "step result has no audit id", nil)
	}
	now := time.Now().UTC()
	result.UpdatedAt = now
	if result.CreatedAt.IsZero() {
		result.CreatedAt = now
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO step_results (
            audit_id, step_position, step_name, conforme, score,
            niveau_conformite, failed, error_message, control_points_json,
            raw_result_json, human_review_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (audit_id, step_position) DO UPDATE SET
            step_name = excluded.step_name,
            conforme = excluded.conforme,
            score = excluded.score,
            niveau_conformite = excluded.niveau_conformite,
            failed = excluded.failed,
            error_message = excluded.error_message,
            control_points_json = excluded.control_points_json,
            raw_result_json = excluded.raw_result_json,
            updated_at = excluded.updated_at`,
		result.AuditID,
		result.StepPosition,
		nullableString(result.StepName),
		boolToInt(result.Conforme),
		nullableFloat(result.Score),
		nullableString(result.NiveauConformite),
		boolToInt(result.Failed),
		nullableString(result.ErrorMessage),
		nullableString(result.ControlPointsJSON),
		nullableString(result.RawResultJSON),
		nullableString(result.HumanReviewJSON),
		result.CreatedAt.Format(time.RFC3339Nano),
		result.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert step result: %w", err)
	}
	return nil
}

// StepResults returns an audit's results ordered by step position.
func (s *Store) StepResults(ctx context.Context, auditID string) ([]*StepResult, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+stepResultColumns+` FROM step_results WHERE audit_id = ? ORDER BY step_position`,
		auditID,
	)
	if err != nil {
		return nil, fmt.Errorf("query step results: %w", err)
	}
	defer rows.Close()

	var results []*StepResult
	for rows.Next() {
		result, err := scanStepResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// GetStepResult fetches one step's result, nil when absent.
func (s *Store) GetStepResult(ctx context.Context, auditID string, stepPosition int) (*StepResult, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+stepResultColumns+` FROM step_results WHERE audit_id = ? AND step_position = ?`,
		auditID,
		stepPosition,
	)
	result, err := scanStepResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get step result: %w", err)
	}
	return result, nil
}

const auditColumns = "id, case_ref, case_name, case_group, rubric_ref, rubric_name, rubric_json, status, niveau, score_percentage, critical_passed, critical_total, earned_weight, total_weight, is_latest, statistics_json, error_message, started_at, completed_at, deleted_at"

const stepResultColumns = "id, audit_id, step_position, step_name, conforme, score, niveau_conformite, failed, error_message, control_points_json, raw_result_json, human_review_json, created_at, updated_at"

func collectAudits(rows *sql.Rows) ([]*Audit, error) {
	var audits []*Audit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		audits = append(audits, a)
	}
	return audits, rows.Err()
}

func scanAudit(scanner interface{ Scan(dest ...any) error }) (*Audit, error) {
	var (
		id             string
		caseRef        string
		caseName       sql.NullString
		caseGroup      sql.NullString
		rubricRef      string
		rubricName     sql.NullString
		rubricJSON     sql.NullString
		statusStr      string
		niveau         sql.NullString
		score          sql.NullFloat64
		criticalPassed sql.NullInt64
		criticalTotal  sql.NullInt64
		earnedWeight   sql.NullFloat64
		totalWeight    sql.NullFloat64
		isLatest       sql.NullInt64
		statsJSON      sql.NullString
		errorMessage   sql.NullString
		startedRaw     sql.NullString
		completedRaw   sql.NullString
		deletedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&caseRef,
		&caseName,
		&caseGroup,
		&rubricRef,
		&rubricName,
		&rubricJSON,
		&statusStr,
		&niveau,
		&score,
		&criticalPassed,
		&criticalTotal,
		&earnedWeight,
		&totalWeight,
		&isLatest,
		&statsJSON,
		&errorMessage,
		&startedRaw,
		&completedRaw,
		&deletedRaw,
	); err != nil {
		return nil, err
	}

	a := &Audit{
		ID:              id,
		CaseRef:         caseRef,
		CaseName:        caseName.String,
		CaseGroup:       caseGroup.String,
		RubricRef:       rubricRef,
		RubricName:      rubricName.String,
		RubricJSON:      rubricJSON.String,
		Status:          Status(statusStr),
		Niveau:          niveau.String,
		ScorePercentage: score.Float64,
		CriticalPassed:  int(criticalPassed.Int64),
		CriticalTotal:   int(criticalTotal.Int64),
		EarnedWeight:    earnedWeight.Float64,
		TotalWeight:     totalWeight.Float64,
		IsLatest:        isLatest.Int64 != 0,
		StatisticsJSON:  statsJSON.String,
		ErrorMessage:    errorMessage.String,
	}
	if started, err := parseTimeString(startedRaw.String); err == nil {
		a.StartedAt = started
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			a.CompletedAt = &completed
		}
	}
	if deletedRaw.Valid {
		if deleted, err := parseTimeString(deletedRaw.String); err == nil {
			a.DeletedAt = &deleted
		}
	}
	return a, nil
}

func scanStepResult(scanner interface{ Scan(dest ...any) error }) (*StepResult, error) {
	var (
		id            int64
		auditID       string
		stepPosition  int
		stepName      sql.NullString
		conforme      sql.NullInt64
		score         sql.NullFloat64
		niveau        sql.NullString
		failed        sql.NullInt64
		errorMessage  sql.NullString
		controlPoints sql.NullString
		rawResult     sql.NullString
		humanReview   sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&auditID,
		&stepPosition,
		&stepName,
		&conforme,
		&score,
		&niveau,
		&failed,
		&errorMessage,
		&controlPoints,
		&rawResult,
		&humanReview,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	result := &StepResult{
		ID:                id,
		AuditID:           auditID,
		StepPosition:      stepPosition,
		StepName:          stepName.String,
		Conforme:          conforme.Int64 != 0,
		NiveauConformite:  niveau.String,
		Failed:            failed.Int64 != 0,
		ErrorMessage:      errorMessage.String,
		ControlPointsJSON: controlPoints.String,
		RawResultJSON:     rawResult.String,
		HumanReviewJSON:   humanReview.String,
	}
	if score.Valid {
		v := score.Float64
		result.Score = &v
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		result.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		result.UpdatedAt = updated
	}
	return result, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
