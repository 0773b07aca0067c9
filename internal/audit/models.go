package audit

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle of an audit run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{StatusRunning, StatusCompleted, StatusFailed}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StatusRunning, StatusCompleted, StatusFailed:
		return normalized, true
	default:
		return "", false
	}
}

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Statistics aggregates one run's step outcomes for observability.
type Statistics struct {
	Successful  int   `json:"successful"`
	Failed      int   `json:"failed"`
	TotalTokens int   `json:"total_tokens"`
	DurationMS  int64 `json:"duration_ms"`
}

// Audit is one run of a rubric against a case, persisted in SQLite.
type Audit struct {
	ID              string
	CaseRef         string
	CaseName        string
	CaseGroup       string
	RubricRef       string
	RubricName      string
	RubricJSON      string
	Status          Status
	Niveau          string
	ScorePercentage float64
	CriticalPassed  int
	CriticalTotal   int
	EarnedWeight    float64
	TotalWeight     float64
	IsLatest        bool
	StatisticsJSON  string
	ErrorMessage    string
	StartedAt       time.Time
	CompletedAt     *time.Time
	DeletedAt       *time.Time
}

// Statistics decodes the persisted run statistics, zero when absent.
func (a *Audit) Statistics() Statistics {
	var stats Statistics
	if a == nil || strings.TrimSpace(a.StatisticsJSON) == "" {
		return stats
	}
	_ = json.Unmarshal([]byte(a.StatisticsJSON), &stats)
	return stats
}

// Deleted reports whether the audit has been soft-deleted.
func (a *Audit) Deleted() bool {
	return a != nil && a.DeletedAt != nil
}

// StepResult is the persisted outcome of one rubric step within an audit.
// At most one row exists per (audit, step position); re-runs upsert.
type StepResult struct {
	ID                int64
	AuditID           string
	StepPosition      int
	StepName          string
	Conforme          bool
	Score             *float64
	NiveauConformite  string
	Failed            bool
	ErrorMessage      string
	ControlPointsJSON string
	RawResultJSON     string
	HumanReviewJSON   string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ControlPoints decodes the structured sub-checks, nil when absent.
func (r *StepResult) ControlPoints() ([]ControlPoint, error) {
	if r == nil || strings.TrimSpace(r.ControlPointsJSON) == "" {
		return nil, nil
	}
	var points []ControlPoint
	if err := json.Unmarshal([]byte(r.ControlPointsJSON), &points); err != nil {
		return nil, err
	}
	return points, nil
}

// SetControlPoints replaces the structured sub-checks.
func (r *StepResult) SetControlPoints(points []ControlPoint) error {
	if len(points) == 0 {
		r.ControlPointsJSON = ""
		return nil
	}
	data, err := json.Marshal(points)
	if err != nil {
		return err
	}
	r.ControlPointsJSON = string(data)
	return nil
}

// ReviewTrail decodes the append-only human-review entries in order.
func (r *StepResult) ReviewTrail() ([]ReviewEntry, error) {
	if r == nil || strings.TrimSpace(r.HumanReviewJSON) == "" {
		return nil, nil
	}
	var entries []ReviewEntry
	if err := json.Unmarshal([]byte(r.HumanReviewJSON), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Citation points from a control point into a specific timeline recording.
// RecordingDate/Time/URL are attached after resolution against the timeline;
// an index with no match is stamped "N/A" rather than dropped.
type Citation struct {
	RecordingIndex int     `json:"recording_index"`
	Timestamp      float64 `json:"timestamp,omitempty"`
	Excerpt        string  `json:"excerpt,omitempty"`
	RecordingDate  string  `json:"recording_date,omitempty"`
	RecordingTime  string  `json:"recording_time,omitempty"`
	RecordingURL   string  `json:"recording_url,omitempty"`
}

// ControlPoint is a sub-check inside a step's result, with cited evidence.
type ControlPoint struct {
	Point       string     `json:"point"`
	Statut      string     `json:"statut"`
	Commentaire string     `json:"commentaire,omitempty"`
	Citations   []Citation `json:"citations,omitempty"`
}

// Review entry kinds.
const (
	ReviewKindStep         = "step"
	ReviewKindControlPoint = "control_point"
)

// ReviewValues carries the reviewed fields of a step or control point. Nil
// fields were not part of the override and kept their prior value.
type ReviewValues struct {
	Conforme         *bool    `json:"conforme,omitempty"`
	Score            *float64 `json:"score,omitempty"`
	NiveauConformite *string  `json:"niveau_conformite,omitempty"`
	Statut           *string  `json:"statut,omitempty"`
	Commentaire      *string  `json:"commentaire,omitempty"`
}

// ReviewEntry records one human correction. Entries are append-only; once
// written they are never mutated or removed.
type ReviewEntry struct {
	At                time.Time    `json:"at"`
	By                string       `json:"by"`
	Reason            string       `json:"reason,omitempty"`
	Kind              string       `json:"kind"`
	ControlPointIndex int          `json:"control_point_index,omitempty"`
	Previous          ReviewValues `json:"previous"`
	Override          ReviewValues `json:"override"`
}
