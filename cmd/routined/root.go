package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"routined/internal/app"
	"routined/internal/config"
	"routined/internal/routine"
	logx "routined/pkg/logx"
)

const defaultConfigPath = "./config.yaml"

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "routined",
		Short: "Routine tracker with holiday-aware reminders",
		Long: `routined keeps recurring routines, answers which of them are due on a
date and arms a reminder for the next time each one is due.

Run "routined serve" as a daemon; the other commands work on the same store.`,
		Version:      Version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "config file (yaml or json)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		newServeCmd(opts),
		newAddCmd(opts),
		newListCmd(opts),
		newRemoveCmd(opts),
		newDueCmd(opts),
		newNextCmd(opts),
		newCheckCmd(opts),
		newReportCmd(opts),
		newHolidaysCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the config file. A missing file at the default path means
// built-in defaults, so the one-shot commands work before "config init".
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.NewConfigManager(o.configPath).Load()
	if errors.Is(err, fs.ErrNotExist) && o.configPath == defaultConfigPath {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}

// open wires storage and the holiday cache for a one-shot command.
func (o *rootOptions) open(cmd *cobra.Command) (*app.Components, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	s, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	level := s.Logging.Level
	if o.logLevel == "" {
		// keep command output readable; warnings still show
		level = "warn"
	}
	log := logx.NewConsole(level).With(logx.String("cmd", cmd.Name()))
	return app.Build(s, log, nil)
}

// parseDay accepts YYYY-MM-DD, "today", "tomorrow" or "yesterday".
func parseDay(s string, today routine.Date) (routine.Date, error) {
	switch s {
	case "", "today":
		return today, nil
	case "tomorrow":
		return today.AddDays(1), nil
	case "yesterday":
		return today.AddDays(-1), nil
	}
	return routine.ParseDate(s)
}
