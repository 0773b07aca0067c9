package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCRM()
	c.normalizeOracle()
	c.normalizeTimeline()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCRM() {
	c.CRM.BaseURL = strings.TrimRight(strings.TrimSpace(c.CRM.BaseURL), "/")
	c.CRM.APIKey = strings.TrimSpace(c.CRM.APIKey)
	if c.CRM.APIKey == "" {
		if value, ok := os.LookupEnv("CALLAUDIT_CRM_API_KEY"); ok {
			c.CRM.APIKey = strings.TrimSpace(value)
		}
	}
	if c.CRM.RequestTimeout <= 0 {
		c.CRM.RequestTimeout = defaultCRMRequestTimeout
	}
}

func (c *Config) normalizeOracle() {
	c.Oracle.BaseURL = strings.TrimSpace(c.Oracle.BaseURL)
	if c.Oracle.BaseURL == "" {
		c.Oracle.BaseURL = defaultOracleBaseURL
	}
	c.Oracle.Model = strings.TrimSpace(c.Oracle.Model)
	if c.Oracle.Model == "" {
		c.Oracle.Model = defaultOracleModel
	}
	c.Oracle.Referer = strings.TrimSpace(c.Oracle.Referer)
	c.Oracle.Title = strings.TrimSpace(c.Oracle.Title)
	if c.Oracle.Title == "" {
		c.Oracle.Title = defaultOracleTitle
	}
	if c.Oracle.TimeoutSeconds <= 0 {
		c.Oracle.TimeoutSeconds = defaultOracleTimeoutSeconds
	}
	if c.Oracle.MaxAttempts <= 0 {
		c.Oracle.MaxAttempts = defaultOracleMaxAttempts
	}
	if c.Oracle.RetryBaseMs <= 0 {
		c.Oracle.RetryBaseMs = defaultOracleRetryBaseMs
	}
	if c.Oracle.RetryMaxMs <= 0 {
		c.Oracle.RetryMaxMs = defaultOracleRetryMaxMs
	}
	c.Oracle.APIKey = strings.TrimSpace(c.Oracle.APIKey)
	if c.Oracle.APIKey == "" {
		if value, ok := os.LookupEnv("CALLAUDIT_ORACLE_API_KEY"); ok {
			c.Oracle.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.Oracle.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeTimeline() {
	if c.Timeline.ChunkMessages <= 0 {
		c.Timeline.ChunkMessages = defaultChunkMessages
	}
	if c.Timeline.FallbackSecondsPerWord <= 0 {
		c.Timeline.FallbackSecondsPerWord = defaultFallbackSecondsPerWord
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.StepWorkers <= 0 {
		c.Workflow.StepWorkers = defaultStepWorkers
	}
	if c.Workflow.StuckRunningMinutes <= 0 {
		c.Workflow.StuckRunningMinutes = defaultStuckRunningMinutes
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
