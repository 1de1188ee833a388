// Package dispatcher implements the process-local client registry and
// fan-out router (spec.md §4.4). It is deliberately the only component
// that knows about every connected client on this pod; the Outbox Poller
// hands it events, and it alone decides which local Stream Engines see
// them.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mdarapour/sse-realtime-demo/internal/model"
)

// Receiver is the enqueue side of a Stream Engine, as seen by the
// Dispatcher. It must not block the caller for long — internal/stream's
// Engine.Enqueue already applies its own bounded wait, so the Dispatcher
// only needs to run each delivery on its own goroutine.
type Receiver interface {
	Enqueue(event model.Event)
}

type registration struct {
	filter   string
	receiver Receiver
	cancel   context.CancelFunc
}

// Dispatcher is the process-local registry of live streams, keyed by
// client id. Its three logical maps (cancel handle, filter, receiver)
// from spec.md §4.4 are collapsed into one map of registrations guarded
// by a single RWMutex — coarse locking is acceptable at the expected
// scale of thousands of local clients (spec.md §5).
type Dispatcher struct {
	mu      sync.RWMutex
	clients map[string]*registration
	logger  *slog.Logger
}

// New builds an empty Dispatcher.
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		clients: make(map[string]*registration),
		logger:  logger.With("component", "dispatcher"),
	}
}

// Register records a locally-connected client and returns a cancellation
// handle the transport must call on disconnect. filter may be empty to
// accept every broadcast event type. parent is typically the HTTP
// request's context; the derived context is also cancelled by Unregister,
// so either side tearing down the connection unregisters the other.
func (d *Dispatcher) Register(parent context.Context, clientID, filter string, receiver Receiver) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	d.mu.Lock()
	d.clients[clientID] = &registration{filter: filter, receiver: receiver, cancel: cancel}
	d.mu.Unlock()

	d.logger.Info("client registered", "clientId", clientID, "filter", filter)

	go func() {
		<-ctx.Done()
		d.Unregister(clientID)
	}()

	return ctx, cancel
}

// Unregister removes a client and fires its cancellation handle. Safe to
// call more than once or for an unknown client id.
func (d *Dispatcher) Unregister(clientID string) {
	d.mu.Lock()
	reg, ok := d.clients[clientID]
	if ok {
		delete(d.clients, clientID)
	}
	d.mu.Unlock()

	if ok {
		reg.cancel()
		d.logger.Info("client unregistered", "clientId", clientID)
	}
}

// Deliver routes one polled event to the matching local streams. It never
// blocks on a slow client: each matching receiver's Enqueue runs on its
// own goroutine, detached from the Poller's call (spec.md §4.3, §4.5).
func (d *Dispatcher) Deliver(event model.Event) {
	if !event.IsBroadcast() {
		d.mu.RLock()
		reg, ok := d.clients[event.Target]
		d.mu.RUnlock()
		if ok {
			go reg.receiver.Enqueue(event)
		}
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, reg := range d.clients {
		if Matches(reg.filter, event.Type) {
			go reg.receiver.Enqueue(event)
		}
	}
}

// HasLocalClients reports whether at least one client is currently
// registered on this pod, used by the Heartbeat Ticker (spec.md §4.7) to
// avoid publishing heartbeats when nobody is listening locally.
func (d *Dispatcher) HasLocalClients() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.clients) > 0
}

// LocalClientCount reports the number of locally-registered clients.
func (d *Dispatcher) LocalClientCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.clients)
}
