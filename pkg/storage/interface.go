package storage

import (
	"context"
	"errors"

	"taskagent/pkg/models"
)

var (
	ErrNotFound    = errors.New("script not found")
	ErrInvalidName = errors.New("invalid script name")
)

// ScriptStore is the agent's library of named scripts, consulted when a
// request carries a name but no content.
type ScriptStore interface {
	// List returns the names of all stored scripts, sorted.
	List(ctx context.Context) ([]string, error)

	// Read returns the script body verbatim, or ErrNotFound.
	Read(ctx context.Context, name string) ([]byte, error)
}

// OutcomePublisher announces finished executions to interested listeners.
// Publishing is best effort and never affects the HTTP response.
type OutcomePublisher interface {
	Publish(ctx context.Context, outcome models.ExecutionOutcome) error
	Close() error
}

// NopPublisher discards every outcome.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.ExecutionOutcome) error { return nil }
func (NopPublisher) Close() error                                           { return nil }
