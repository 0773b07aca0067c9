package rubric

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"callaudit/internal/services"
)

// Step is one rubric entry, evaluated independently against the timeline.
type Step struct {
	Position            int     `json:"position"`
	Name                string  `json:"name"`
	Weight              float64 `json:"weight"`
	Critical            bool    `json:"critical,omitempty"`
	Severity            string  `json:"severity,omitempty"`
	RequiresProductInfo bool    `json:"requires_product_info,omitempty"`
	Prompt              string  `json:"prompt,omitempty"`
}

// Rubric is a named, ordered, weighted list of compliance steps.
type Rubric struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// Parse loads a rubric from JSON and validates it.
func Parse(raw []byte) (Rubric, error) {
	var r Rubric
	if err := json.Unmarshal(raw, &r); err != nil {
		return Rubric{}, services.Wrap(services.ErrValidation, "rubric", "parse", "invalid rubric JSON", err)
	}
	if err := r.Validate(); err != nil {
		return Rubric{}, err
	}
	return r, nil
}

// LoadFile reads and parses a rubric definition from disk.
func LoadFile(path string) (Rubric, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Rubric{}, services.Wrap(services.ErrNotFound, "rubric", "load", fmt.Sprintf("rubric file %s not found", path), err)
		}
		return Rubric{}, services.Wrap(services.ErrConfiguration, "rubric", "load", fmt.Sprintf("read rubric file %s", path), err)
	}
	return Parse(raw)
}

// Encode serialises the rubric to JSON.
func (r Rubric) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Validate checks the structural invariants a run depends on: non-empty
// ordered steps, positive weights, and unique positions.
func (r Rubric) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return services.Wrap(services.ErrValidation, "rubric", "validate", "rubric name is required", nil)
	}
	if len(r.Steps) == 0 {
		return services.Wrap(services.ErrValidation, "rubric", "validate", "rubric has no steps", nil)
	}
	seen := make(map[int]struct{}, len(r.Steps))
	for _, step := range r.Steps {
		if strings.TrimSpace(step.Name) == "" {
			return services.Wrap(services.ErrValidation, "rubric", "validate", fmt.Sprintf("step %d has no name", step.Position), nil)
		}
		if step.Weight <= 0 {
			return services.Wrap(services.ErrValidation, "rubric", "validate", fmt.Sprintf("step %d (%s) has non-positive weight", step.Position, step.Name), nil)
		}
		if _, dup := seen[step.Position]; dup {
			return services.Wrap(services.ErrValidation, "rubric", "validate", fmt.Sprintf("duplicate step position %d", step.Position), nil)
		}
		seen[step.Position] = struct{}{}
	}
	return nil
}

// Snapshot returns an independent copy ordered by step position. Runs hold
// the snapshot for their whole lifetime.
func (r Rubric) Snapshot() Rubric {
	out := r
	out.Steps = slices.Clone(r.Steps)
	sort.Slice(out.Steps, func(i, j int) bool { return out.Steps[i].Position < out.Steps[j].Position })
	return out
}

// StepAt returns the step definition at the given position, if present.
func (r Rubric) StepAt(position int) (Step, bool) {
	for _, step := range r.Steps {
		if step.Position == position {
			return step, true
		}
	}
	return Step{}, false
}

// TotalWeight is the scoring denominator.
func (r Rubric) TotalWeight() float64 {
	total := 0.0
	for _, step := range r.Steps {
		total += step.Weight
	}
	return total
}

// CriticalCount returns how many steps carry the critical flag.
func (r Rubric) CriticalCount() int {
	count := 0
	for _, step := range r.Steps {
		if step.Critical {
			count++
		}
	}
	return count
}

// RequiresProductInfo reports whether any step needs product-link data.
func (r Rubric) RequiresProductInfo() bool {
	for _, step := range r.Steps {
		if step.RequiresProductInfo {
			return true
		}
	}
	return false
}
