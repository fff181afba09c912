// Package events connects the browsing widgets through named events.
//
// A Registry holds the components active in one context and fans dispatched
// events out to their handler tables in registration order. A Bus carries
// broadcasts between contexts: LocalBus dispatches directly, RelayBus passes
// JSON envelopes through a websocket relay so isolated widgets behave the
// same as co-located ones.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
)

// EventName identifies a cross-widget event. The set is closed.
type EventName string

const (
	EventLogin          EventName = "cmis-login"
	EventLogout         EventName = "cmis-logout"
	EventClickFolder    EventName = "cmis-clickFolder"
	EventCreateFolder   EventName = "cmis-createFolder"
	EventDeleteFolder   EventName = "cmis-deleteFolder"
	EventDeleteChildren EventName = "cmis-deleteChildren"
	EventEditFolder     EventName = "cmis-editFolder"
	EventCheckedOutDocs EventName = "cmis-getCheckedOutDocs"
)

var knownEvents = map[EventName]struct{}{
	EventLogin:          {},
	EventLogout:         {},
	EventClickFolder:    {},
	EventCreateFolder:   {},
	EventDeleteFolder:   {},
	EventDeleteChildren: {},
	EventEditFolder:     {},
	EventCheckedOutDocs: {},
}

// Valid reports whether the name belongs to the closed event set.
func (n EventName) Valid() bool {
	_, ok := knownEvents[n]
	return ok
}

// Handler receives the single string parameter of an event.
type Handler func(param string)

// ComponentKind identifies the widget type behind a registration.
type ComponentKind string

const (
	KindBrowser ComponentKind = "browser"
	KindLibrary ComponentKind = "library"
)

// Component declares what a widget emits and handles.
type Component struct {
	Kind     ComponentKind
	Emits    []EventName
	Handlers map[EventName]Handler
}

// Registration is the handle returned by Register. Registrations persist
// for the registry lifetime; there is no unregister.
type Registration struct {
	component *Component
}

// Kind returns the registered component kind.
func (r *Registration) Kind() ComponentKind { return r.component.Kind }

// Registry is the catalogue of active components in one context.
type Registry struct {
	mu         sync.RWMutex
	components []*Component
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a component. Handlers for each declared event name are
// delivered in registration order.
func (r *Registry) Register(c Component) *Registration {
	stored := &Component{
		Kind:     c.Kind,
		Emits:    append([]EventName(nil), c.Emits...),
		Handlers: make(map[EventName]Handler, len(c.Handlers)),
	}
	for name, h := range c.Handlers {
		stored.Handlers[name] = h
	}

	r.mu.Lock()
	r.components = append(r.components, stored)
	r.mu.Unlock()
	return &Registration{component: stored}
}

// Count returns the number of registered components.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.components)
}

// Dispatch delivers param to every component whose handler table contains
// name, synchronously and in registration order.
func (r *Registry) Dispatch(name EventName, param string) {
	r.mu.RLock()
	components := append([]*Component(nil), r.components...)
	r.mu.RUnlock()

	for _, c := range components {
		if h, ok := c.Handlers[name]; ok && h != nil {
			h(param)
		}
	}
}

// Envelope is the wire form of one event, shared by every transport.
type Envelope struct {
	Name   EventName `json:"name"`
	Params []string  `json:"params"`
}

// Param returns the first parameter, or "".
func (e Envelope) Param() string {
	if len(e.Params) == 0 {
		return ""
	}
	return e.Params[0]
}

// ParseEnvelope decodes and validates an inbound payload.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Name.Valid() {
		return Envelope{}, fmt.Errorf("unknown event %q", env.Name)
	}
	return env, nil
}
