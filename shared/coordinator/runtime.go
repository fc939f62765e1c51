package coordinator

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/orderflow/fulfillment-system/shared/models"
	"github.com/orderflow/fulfillment-system/shared/protocol"
)

// Runtime is an in-process Coordinator. Instances run as goroutines; the
// registry maps ids to live instances. Signal application is serialized
// per instance, which preserves send order per sender because Signal does
// not return until the handler has run.
type Runtime struct {
	mu        sync.RWMutex
	factories map[string]Factory
	instances map[models.ID]*instance

	logger zerolog.Logger
}

type instance struct {
	signalMu sync.Mutex
	proc     Process
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRuntime creates an empty runtime
func NewRuntime(logger zerolog.Logger) *Runtime {
	return &Runtime{
		factories: make(map[string]Factory),
		instances: make(map[models.ID]*instance),
		logger:    logger,
	}
}

// RegisterProcessType registers a factory for a process type name
func (r *Runtime) RegisterProcessType(processType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[processType] = factory
}

// Start implements Coordinator
func (r *Runtime) Start(ctx context.Context, processType string, instanceID models.ID, initialArgs json.RawMessage) (models.ID, error) {
	r.mu.Lock()
	factory, ok := r.factories[processType]
	if !ok {
		r.mu.Unlock()
		return "", errors.Wrapf(ErrUnknownProcessType, "type %q", processType)
	}

	if instanceID.IsEmpty() {
		instanceID = models.GenerateUUID()
	}

	if _, exists := r.instances[instanceID]; exists {
		r.mu.Unlock()
		return "", errors.Errorf("instance %s already running", instanceID)
	}

	proc, err := factory(instanceID, initialArgs)
	if err != nil {
		r.mu.Unlock()
		return "", errors.Wrapf(err, "failed to build %s instance", processType)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	inst := &instance{
		proc:   proc,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.instances[instanceID] = inst
	r.mu.Unlock()

	r.logger.Info().
		Str("process_type", processType).
		Str("instance_id", instanceID.String()).
		Msg("starting process instance")

	go func() {
		defer close(inst.done)
		proc.Run(runCtx)
	}()

	return instanceID, nil
}

// Signal implements Coordinator
func (r *Runtime) Signal(ctx context.Context, instanceID models.ID, env protocol.Envelope) error {
	inst, err := r.lookup(instanceID)
	if err != nil {
		return err
	}

	inst.signalMu.Lock()
	defer inst.signalMu.Unlock()

	if err := inst.proc.HandleSignal(env); err != nil {
		return errors.Wrapf(err, "signal %s to instance %s", env.Kind, instanceID)
	}
	return nil
}

// Query implements Coordinator
func (r *Runtime) Query(ctx context.Context, instanceID models.ID, queryName string) (interface{}, error) {
	inst, err := r.lookup(instanceID)
	if err != nil {
		return nil, err
	}
	return inst.proc.HandleQuery(queryName)
}

// Wait blocks until the instance's main sequence returns or ctx is done.
// Terminal instances stay in the registry and remain queryable.
func (r *Runtime) Wait(ctx context.Context, instanceID models.ID) error {
	inst, err := r.lookup(instanceID)
	if err != nil {
		return err
	}
	select {
	case <-inst.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels all running instances and waits for them to stop
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	insts := make([]*instance, 0, len(r.instances))
	for _, inst := range r.instances {
		insts = append(insts, inst)
	}
	r.mu.RUnlock()

	for _, inst := range insts {
		inst.cancel()
	}
	for _, inst := range insts {
		select {
		case <-inst.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *Runtime) lookup(instanceID models.ID) (*instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.instances[instanceID]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "instance %s", instanceID)
	}
	return inst, nil
}
