package runner

import (
	"context"
	"time"
)

// Command describes a single process to spawn.
type Command struct {
	Path string
	Args []string
	// Env is the complete child environment. A nil Env inherits the parent's.
	Env []string
	Dir string
}

// Result captures the outcome of a process execution.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
	Error    error // spawn/wait failure; nil for a plain non-zero exit
}

// Runner defines the interface for executing a single process.
type Runner interface {
	// Run spawns cmd and blocks until it exits or ctx is done. Output is
	// captured as text. Run never panics on process failures; they are
	// reported through Result.
	Run(ctx context.Context, cmd Command) Result
}
