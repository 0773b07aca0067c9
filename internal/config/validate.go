package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateScoring(); err != nil {
		return err
	}
	if err := c.validateTimeline(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateScoring() error {
	thresholds := map[string]float64{
		"scoring.excellent":  c.Scoring.Excellent,
		"scoring.bon":        c.Scoring.Bon,
		"scoring.acceptable": c.Scoring.Acceptable,
	}
	for name, value := range thresholds {
		if value < 0 || value > 100 {
			return fmt.Errorf("%s must be between 0 and 100", name)
		}
	}
	if c.Scoring.Excellent < c.Scoring.Bon || c.Scoring.Bon < c.Scoring.Acceptable {
		return errors.New("scoring thresholds must be ordered: excellent >= bon >= acceptable")
	}
	return nil
}

func (c *Config) validateTimeline() error {
	if c.Timeline.ChunkMessages <= 0 {
		return errors.New("timeline.chunk_messages must be positive")
	}
	if c.Timeline.FallbackSecondsPerWord <= 0 {
		return errors.New("timeline.fallback_seconds_per_word must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	positives := map[string]int{
		"crm.request_timeout":            c.CRM.RequestTimeout,
		"oracle.timeout_seconds":         c.Oracle.TimeoutSeconds,
		"oracle.max_attempts":            c.Oracle.MaxAttempts,
		"oracle.retry_base_ms":           c.Oracle.RetryBaseMs,
		"oracle.retry_max_ms":            c.Oracle.RetryMaxMs,
		"workflow.step_workers":          c.Workflow.StepWorkers,
		"workflow.stuck_running_minutes": c.Workflow.StuckRunningMinutes,
	}
	for name, value := range positives {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// RequireOracle verifies the oracle connection settings needed for a run.
// Kept out of Validate so read-only commands work without credentials.
func (c *Config) RequireOracle() error {
	if c.Oracle.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/callaudit/config.toml"
		}
		return fmt.Errorf("oracle.api_key is required. Set CALLAUDIT_ORACLE_API_KEY env var or edit %s (create with 'callaudit config init')", defaultPath)
	}
	return nil
}

// RequireCRM verifies the CRM connection settings needed for a run.
func (c *Config) RequireCRM() error {
	if c.CRM.BaseURL == "" {
		return errors.New("crm.base_url is required to fetch cases and transcripts")
	}
	return nil
}
