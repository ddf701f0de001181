package coordination

import (
	"context"
	"time"
)

// AgentInfo is what an agent advertises about itself while it is up.
type AgentInfo struct {
	ID        string    `json:"id"`
	Hostname  string    `json:"hostname"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"started_at"`
}

// Registrar makes a running agent discoverable.
type Registrar interface {
	// Run keeps the agent registered until ctx is cancelled, then withdraws
	// the registration.
	Run(ctx context.Context, info AgentInfo) error

	// Agents lists every currently registered agent.
	Agents(ctx context.Context) ([]AgentInfo, error)

	// Close terminates the coordinator connection.
	Close() error
}
