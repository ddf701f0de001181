package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	config "taskagent/configs"
	"taskagent/pkg/executor"
	"taskagent/pkg/logger"
	"taskagent/pkg/models"
)

// runParams bundles the inputs of the run command.
type runParams struct {
	stdout     io.Writer
	file       string
	scriptType string
	params     []string
	timeout    time.Duration
}

func newRunCommand() *cobra.Command {
	p := runParams{}

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute one local script and print its outcome",
		Long: `Execute one local script through the same engine the HTTP agent uses and
print the outcome JSON. The exit code is 1 when the outcome is an error.`,
		Example: `  taskagent run backup.py -p source=/var/data -p destination=/mnt/backup
  taskagent run tool --type executable`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if _, err := logger.Init(logger.Config{
				Level:      cfg.LogLevel,
				Encoding:   "console",
				OutputPath: "stderr",
				Service:    "taskagent",
			}); err != nil {
				return err
			}
			defer logger.Sync()

			p.stdout = cmd.OutOrStdout()
			p.file = args[0]
			if p.timeout > 0 {
				cfg.ExecTimeout = p.timeout
			}
			engine, err := newEngine(cfg, logger.Get())
			if err != nil {
				return err
			}
			return runScript(cmd.Context(), engine, p)
		},
	}

	cmd.Flags().StringVarP(&p.scriptType, "type", "t", "", "script type (shell, python, javascript, executable); inferred from the file name by default")
	cmd.Flags().StringArrayVarP(&p.params, "param", "p", nil, "parameter as key=value, exposed as PARAM_<KEY> (repeatable)")
	cmd.Flags().DurationVar(&p.timeout, "timeout", 0, "execution timeout (default from EXEC_TIMEOUT)")
	return cmd
}

func runScript(ctx context.Context, engine *executor.Engine, p runParams) error {
	content, err := os.ReadFile(p.file)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}
	params, err := parseParams(p.params)
	if err != nil {
		return err
	}

	outcome := engine.Execute(ctx, models.ExecutionRequest{
		ScriptName:    filepath.Base(p.file),
		ScriptContent: string(content),
		ScriptType:    p.scriptType,
		Parameters:    params,
		ExecutionID:   uuid.NewString(),
	})

	enc := json.NewEncoder(p.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcome); err != nil {
		return err
	}
	if !outcome.Succeeded() {
		logger.Get().Debug("script failed", zap.String("execution_id", outcome.ExecutionID))
		return &exitError{code: 1}
	}
	return nil
}

// parseParams turns key=value pairs into parameters. Only the first '='
// separates; the value may contain more.
func parseParams(pairs []string) (models.Parameters, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(models.Parameters, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q: want key=value", pair)
		}
		params[key] = value
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}
