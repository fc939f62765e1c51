// Package coordinator is the boundary through which saga processes are
// started, signalled and queried. Processes never hold references to each
// other; the coordinator routes everything by instance id.
package coordinator

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/orderflow/fulfillment-system/shared/models"
	"github.com/orderflow/fulfillment-system/shared/protocol"
)

var (
	// ErrNotFound is returned when no instance with the given id exists
	ErrNotFound = errors.New("process instance not found")
	// ErrUnreachable is returned on transient delivery failure
	ErrUnreachable = errors.New("process instance unreachable")
	// ErrUnknownProcessType is returned when starting an unregistered type
	ErrUnknownProcessType = errors.New("unknown process type")
)

// Coordinator starts process instances and routes signals and queries to
// them by identifier.
type Coordinator interface {
	// Start launches a new instance of the given process type. An empty
	// instanceID asks the coordinator to allocate one. The returned
	// instance is signalable and queryable once Start returns.
	Start(ctx context.Context, processType string, instanceID models.ID, initialArgs json.RawMessage) (models.ID, error)

	// Signal delivers a signal envelope to a running instance. Handlers
	// are applied atomically and in send order per sender. Delivery is
	// at-least-once; handlers tolerate duplicates.
	Signal(ctx context.Context, instanceID models.ID, env protocol.Envelope) error

	// Query performs a synchronous, side-effect-free read of an
	// instance's exposed state.
	Query(ctx context.Context, instanceID models.ID, queryName string) (interface{}, error)
}

// Process is a running saga instance hosted by a runtime. Run drives the
// main sequence and returns when the instance reaches a terminal status.
// HandleSignal and HandleQuery must be safe to call while Run executes;
// the instance's own state guards provide the single-writer discipline.
type Process interface {
	Run(ctx context.Context)
	HandleSignal(env protocol.Envelope) error
	HandleQuery(queryName string) (interface{}, error)
}

// Factory builds a process instance from its id and initial arguments
type Factory func(instanceID models.ID, initialArgs json.RawMessage) (Process, error)
