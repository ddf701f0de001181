package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"taskagent/pkg/executor/runner"
	"taskagent/pkg/logger"
	"taskagent/pkg/metrics"
	"taskagent/pkg/models"
)

// DefaultTimeout is the wall-clock ceiling for one script run.
const DefaultTimeout = 300 * time.Second

// artifactPrefix starts the name of every script artifact; the
// janitor only ever touches files carrying this prefix.
const artifactPrefix = "script-"

// Config holds the engine's static settings.
type Config struct {
	// WorkDir is the agent-scoped directory holding transient script artifacts.
	WorkDir      string
	Timeout      time.Duration
	Interpreters Interpreters
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		WorkDir:      filepath.Join(os.TempDir(), "taskagent"),
		Timeout:      DefaultTimeout,
		Interpreters: DefaultInterpreters(),
	}
}

// Engine runs script bodies as isolated local processes. It is safe for
// concurrent use; calls share nothing but the in-flight tracker.
type Engine struct {
	cfg     Config
	runner  runner.Runner
	tracker *Tracker
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
	environ func() []string
}

// Option customizes an Engine.
type Option func(*Engine)

func WithRunner(r runner.Runner) Option     { return func(e *Engine) { e.runner = r } }
func WithTracker(t *Tracker) Option         { return func(e *Engine) { e.tracker = t } }
func WithLogger(l *zap.Logger) Option       { return func(e *Engine) { e.logger = l } }
func WithTracer(t trace.Tracer) Option      { return func(e *Engine) { e.tracer = t } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithEnviron replaces the source of the inherited environment.
func WithEnviron(fn func() []string) Option { return func(e *Engine) { e.environ = fn } }

// NewEngine creates an engine and its work directory.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = DefaultConfig().WorkDir
	}
	if cfg.Interpreters == (Interpreters{}) {
		cfg.Interpreters = DefaultInterpreters()
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		runner:  runner.NewProcessRunner(),
		tracker: NewTracker(metrics.ScriptsRunning),
		logger:  logger.Named("executor"),
		tracer:  otel.Tracer("taskagent/executor"),
		now:     time.Now,
		environ: os.Environ,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Running reports how many executions are in flight.
func (e *Engine) Running() int {
	return e.tracker.Count()
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// ResolveKind picks the kind for req: an explicit ScriptType wins, otherwise
// the script name's suffix decides.
func ResolveKind(req models.ExecutionRequest) (ScriptKind, error) {
	if req.ScriptType != "" {
		return ParseKind(req.ScriptType)
	}
	return KindFromName(req.ScriptName), nil
}

// Execute runs one script and reports its outcome. It never returns an
// error: every failure mode is folded into the outcome. The artifact written
// for the run is removed before Execute returns, whatever the outcome.
//
// Cancellation of ctx does not stop the script; only the timeout does.
func (e *Engine) Execute(ctx context.Context, req models.ExecutionRequest) (outcome models.ExecutionOutcome) {
	end := e.tracker.begin()
	defer end()

	start := e.now()
	ctx, span := e.tracer.Start(ctx, "executor.Execute", trace.WithAttributes(
		attribute.String("execution.id", req.ExecutionID),
		attribute.String("script.name", req.ScriptName),
	))
	defer span.End()

	kind, kindErr := ResolveKind(req)
	log := e.logger.With(
		zap.String("execution_id", req.ExecutionID),
		zap.String("script", req.ScriptName),
		zap.Stringer("kind", kind),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("execution panicked", zap.Any("panic", r), zap.Stack("stack"))
			outcome = e.fault(req, start, fmt.Errorf("internal error: %v", r))
		}
		elapsed := time.Duration(outcome.DurationMillis) * time.Millisecond
		metrics.RecordExecution(kind.String(), string(outcome.Status), elapsed.Seconds())
		span.SetAttributes(
			attribute.String("script.kind", kind.String()),
			attribute.String("execution.status", string(outcome.Status)),
			attribute.Int64("execution.duration_ms", outcome.DurationMillis),
		)
		if !outcome.Succeeded() {
			span.SetStatus(codes.Error, outcome.Error)
		}
		log.Info("execution finished",
			zap.String("status", string(outcome.Status)),
			zap.Int64("duration_ms", outcome.DurationMillis),
		)
	}()

	if kindErr != nil {
		return e.fault(req, start, kindErr)
	}
	if err := req.Parameters.Validate(); err != nil {
		return e.fault(req, start, err)
	}

	spec := e.cfg.Interpreters.Spec(kind)
	path, err := e.materialize(req.ScriptContent, spec)
	if err != nil {
		return e.fault(req, start, err)
	}
	defer e.cleanup(path, log)

	cmd := spec.Command(path)
	cmd.Env = buildEnv(e.environ(), req.Parameters)

	log.Info("execution started", zap.String("artifact", path))

	// Detach from the caller's cancellation: the timeout is the only way a
	// run ends early.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.Timeout)
	defer cancel()

	res := e.runner.Run(runCtx, cmd)
	duration := e.elapsed(start)

	switch {
	case res.TimedOut:
		metrics.ExecutionTimeouts.Inc()
		log.Warn("execution timed out", zap.Duration("timeout", e.cfg.Timeout))
		return models.ExecutionOutcome{
			ExecutionID:    req.ExecutionID,
			Status:         models.OutcomeError,
			Error:          e.TimeoutMessage(),
			DurationMillis: duration,
		}
	case res.Error != nil:
		return e.fault(req, start, fmt.Errorf("failed to run script: %w", res.Error))
	case res.ExitCode == 0:
		stdout := res.Stdout
		return models.ExecutionOutcome{
			ExecutionID:    req.ExecutionID,
			Status:         models.OutcomeSuccess,
			Output:         &stdout,
			DurationMillis: duration,
		}
	default:
		stdout := res.Stdout
		msg := res.Stderr
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", res.ExitCode)
		}
		return models.ExecutionOutcome{
			ExecutionID:    req.ExecutionID,
			Status:         models.OutcomeError,
			Output:         &stdout,
			Error:          msg,
			DurationMillis: duration,
		}
	}
}

// TimeoutMessage is the fixed error text reported for timed out runs.
func (e *Engine) TimeoutMessage() string {
	return fmt.Sprintf("Script execution timed out (%s)", e.cfg.Timeout)
}

// materialize writes content verbatim to a fresh artifact in the work
// directory. os.CreateTemp guarantees the name is unique.
func (e *Engine) materialize(content string, spec KindSpec) (string, error) {
	f, err := os.CreateTemp(e.cfg.WorkDir, artifactPrefix+"*"+spec.Suffix)
	if err != nil {
		return "", fmt.Errorf("failed to create script file: %w", err)
	}
	path := f.Name()

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write script file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close script file: %w", err)
	}
	if spec.Executable {
		if err := os.Chmod(path, 0o755); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("failed to make script executable: %w", err)
		}
	}
	return path, nil
}

// cleanup removes the artifact. Failures are logged and otherwise ignored.
func (e *Engine) cleanup(path string, log *zap.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove script artifact", zap.String("artifact", path), zap.Error(err))
	}
}

func (e *Engine) fault(req models.ExecutionRequest, start time.Time, err error) models.ExecutionOutcome {
	return models.ExecutionOutcome{
		ExecutionID:    req.ExecutionID,
		Status:         models.OutcomeError,
		Error:          err.Error(),
		DurationMillis: e.elapsed(start),
	}
}

// elapsed is the wall-clock time since start rounded to the millisecond.
func (e *Engine) elapsed(start time.Time) int64 {
	ms := e.now().Sub(start).Round(time.Millisecond).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
