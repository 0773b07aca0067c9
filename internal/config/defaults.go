package config

const (
	defaultDataDir                = "~/.local/share/callaudit"
	defaultLogDir                 = "~/.local/share/callaudit/logs"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultCRMRequestTimeout      = 15
	defaultOracleBaseURL          = "https://openrouter.ai/api/v1/chat/completions"
	defaultOracleModel            = "google/gemini-3-flash-preview"
	defaultOracleReferer          = "https://github.com/callaudit/callaudit"
	defaultOracleTitle            = "Callaudit Compliance Oracle"
	defaultOracleTimeoutSeconds   = 60
	defaultOracleMaxAttempts      = 4
	defaultOracleRetryBaseMs      = 1000
	defaultOracleRetryMaxMs       = 10000
	defaultChunkMessages          = 20
	defaultFallbackSecondsPerWord = 0.5
	defaultScoringExcellent       = 90.0
	defaultScoringBon             = 75.0
	defaultScoringAcceptable      = 60.0
	defaultStepWorkers            = 4
	defaultStuckRunningMinutes    = 120
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		CRM: CRM{
			RequestTimeout: defaultCRMRequestTimeout,
		},
		Oracle: Oracle{
			BaseURL:        defaultOracleBaseURL,
			Model:          defaultOracleModel,
			Referer:        defaultOracleReferer,
			Title:          defaultOracleTitle,
			TimeoutSeconds: defaultOracleTimeoutSeconds,
			MaxAttempts:    defaultOracleMaxAttempts,
			RetryBaseMs:    defaultOracleRetryBaseMs,
			RetryMaxMs:     defaultOracleRetryMaxMs,
		},
		Timeline: Timeline{
			ChunkMessages:          defaultChunkMessages,
			FallbackSecondsPerWord: defaultFallbackSecondsPerWord,
		},
		Scoring: Scoring{
			Excellent:  defaultScoringExcellent,
			Bon:        defaultScoringBon,
			Acceptable: defaultScoringAcceptable,
		},
		Workflow: Workflow{
			StepWorkers:         defaultStepWorkers,
			StuckRunningMinutes: defaultStuckRunningMinutes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
