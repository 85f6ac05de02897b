// Package storageengine defines the adapter surface described in
// spec.md §6.1: the handful of calls a storage engine must support so the
// Event Interceptor can be installed, plus a process-wide registry for
// resolving an engine by name. Grounded on pebble's register-by-name,
// resolve-by-name pattern for its vfs.FS and sstable reader-advisor
// provider slots (DESIGN.md §G).
package storageengine

import (
	"sync"

	"github.com/taosdata/incbitmap/internal/errs"
)

// Stats is the adapter-reported counterpart to the interceptor's own
// counters: how many events the storage engine itself observed and
// forwarded, independent of whether the interceptor accepted them.
type Stats struct {
	EventsObserved uint64
}

// EventSink receives a raw mutation observed by a Source; bound to the
// interceptor's On* methods by whoever constructs the Source.
type EventSink interface {
	OnBlockCreate(blockID, walOffset uint64, ts int64) error
	OnBlockUpdate(blockID, walOffset uint64, ts int64) error
	OnBlockFlush(blockID, walOffset uint64, ts int64) error
	OnBlockDelete(blockID, walOffset uint64, ts int64) error
}

// Source is the adapter surface a storage engine implements to be
// interceptable (spec §6.1).
type Source interface {
	// Init prepares the adapter, without yet observing events.
	Init(sink EventSink) error
	// InstallInterception begins forwarding mutation events to the sink.
	InstallInterception() error
	// UninstallInterception stops forwarding events; Init need not be
	// called again before a later InstallInterception.
	UninstallInterception() error
	// TriggerEvent lets a caller (e.g. a test, or a polling watcher) push
	// a synthetic event through the adapter as though the engine produced
	// it natively.
	TriggerEvent(kind EventKindHint, blockID, walOffset uint64, ts int64) error
	GetStats() Stats
	IsSupported() bool
	GetEngineName() string
}

// EventKindHint avoids storageengine depending on the interceptor package
// for its EventKind type; adapters translate this into whichever concrete
// event type the sink expects.
type EventKindHint int8

const (
	HintCreate EventKindHint = iota
	HintUpdate
	HintFlush
	HintDelete
)

// Factory builds a new Source instance, e.g. reading engine-specific config
// from opts.
type Factory func(opts map[string]string) (Source, error)

// Registry resolves a storage-engine adapter by name (spec §6.1).
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register associates name with factory, overwriting any prior registration.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get builds a Source for name, or an unsupportedSource if name is unknown.
func (r *Registry) Get(name string, opts map[string]string) (Source, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return unsupportedSource{name: name}, nil
	}
	src, err := factory(opts)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidParam, err, "storageengine: building adapter %q", name)
	}
	return src, nil
}

// unsupportedSource is returned for an unregistered engine name: every
// operation reports unsupported rather than panicking or erroring the
// caller's setup path.
type unsupportedSource struct{ name string }

func (unsupportedSource) Init(EventSink) error             { return nil }
func (unsupportedSource) InstallInterception() error        { return nil }
func (unsupportedSource) UninstallInterception() error       { return nil }
func (unsupportedSource) TriggerEvent(EventKindHint, uint64, uint64, int64) error {
	return errs.New(errs.NotInitialized, "storageengine: adapter not registered")
}
func (unsupportedSource) GetStats() Stats   { return Stats{} }
func (unsupportedSource) IsSupported() bool { return false }
func (s unsupportedSource) GetEngineName() string { return s.name }
