package events

import (
	"github.com/pavel-ixxus/chemistry-cmis/internal/metrics"
)

// Bus carries broadcasts from a widget to its peers. Implementations are
// chosen once at construction; widgets never inspect their surroundings.
type Bus interface {
	// Broadcast sends an event to every peer. Fire-and-forget: delivery is
	// at-most-once and unordered relative to other senders.
	Broadcast(name EventName, param string) error

	// Close releases transport resources. A closed bus drops broadcasts.
	Close() error
}

// LocalBus dispatches directly through a shared in-process registry.
type LocalBus struct {
	registry *Registry
}

// NewLocalBus creates a bus over the given registry.
func NewLocalBus(r *Registry) *LocalBus {
	return &LocalBus{registry: r}
}

// Broadcast fans the event out synchronously.
func (b *LocalBus) Broadcast(name EventName, param string) error {
	metrics.RecordBusEvent(string(name), "local")
	b.registry.Dispatch(name, param)
	return nil
}

// Close is a no-op for the local transport.
func (b *LocalBus) Close() error { return nil }
