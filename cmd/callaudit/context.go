package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"callaudit/internal/audit"
	"callaudit/internal/config"
	"callaudit/internal/crm"
	"callaudit/internal/logging"
	"callaudit/internal/oracle"
	"callaudit/internal/pipeline"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStore opens the audit store for the duration of one command.
func (c *commandContext) withStore(fn func(*config.Config, *audit.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := audit.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

// newRunner wires a pipeline runner against the live oracle and CRM clients.
func (c *commandContext) newRunner(cfg *config.Config, store *audit.Store, logger *slog.Logger) *pipeline.Runner {
	crmClient := crm.NewClient(cfg.CRM)
	oracleClient := oracle.NewClient(cfg.Oracle)
	return pipeline.NewRunner(cfg, logger, store, oracleClient, crmClient, crmClient, crmClient)
}

func (c *commandContext) newLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.NewFromConfig(cfg)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
